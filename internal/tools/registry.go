package tools

import (
	"encoding/json"
	"fmt"
	"log"

	"xiaoqiu/internal/game"
	"xiaoqiu/internal/protocol"
	"xiaoqiu/pkg/types"
)

// Result is the structured payload returned to the model for one tool
// call. Failures are results too, never local errors.
type Result map[string]any

// Hooks are the local side effects tools can trigger. Nil hooks are
// skipped.
type Hooks struct {
	// DisplayCharacter renders and animates one Chinese character.
	DisplayCharacter func(character string)

	// AppendStatus appends a line to the visible session status text.
	AppendStatus func(text string)

	// ScheduleEnd requests a graceful session stop after the closing
	// message has had time to land.
	ScheduleEnd func(reason string)
}

type handler func(args map[string]any) Result

// Registry holds the tools one session advertises to the model and
// dispatches its calls. Built once at channel open; immutable after.
type Registry struct {
	defs     []protocol.Tool
	handlers map[string]handler

	engine *game.Engine
	hooks  Hooks
}

// param is one flat string parameter in a tool schema.
type param struct {
	name string
	desc string
}

func stringSchema(params []param) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		properties[p.name] = map[string]any{"type": "string", "description": p.desc}
		required = append(required, p.name)
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// NewRegistry builds the base tool set plus the game tools the settings
// call for. The engine may be nil when the mode has no progression.
func NewRegistry(settings *types.Settings, engine *game.Engine, hooks Hooks) *Registry {
	r := &Registry{
		handlers: make(map[string]handler),
		engine:   engine,
		hooks:    hooks,
	}

	r.register(protocol.Tool{
		Type:        "function",
		Name:        "writeCharacter",
		Description: "Triggers rendering and animation of a specific Chinese character.",
		Parameters:  stringSchema([]param{{"character", "The Chinese character."}}),
	}, r.writeCharacter)

	r.register(protocol.Tool{
		Type:        "function",
		Name:        "reviewMissedWordsSuccess",
		Description: "Confirms initiation of reviewing missed words. Call ONLY if the user agreed AND there are missed words.",
		Parameters:  stringSchema(nil),
	}, r.reviewMissedWordsSuccess)

	r.register(protocol.Tool{
		Type:        "function",
		Name:        "reviewMissedWordsEmpty",
		Description: "Reports that there are no missed words to review. Call ONLY if user asks to review but the missed list is empty.",
		Parameters:  stringSchema(nil),
	}, r.reviewMissedWordsEmpty)

	r.register(protocol.Tool{
		Type:        "function",
		Name:        "endSession",
		Description: "Ends the conversation session gracefully. Call when the game/lesson concludes naturally or the user indicates they want to stop.",
		Parameters:  stringSchema([]param{{"reason", "Brief reason for ending."}}),
	}, r.endSession)

	if settings != nil && settings.RequiresProgression() {
		r.registerGameTools(settings.GameType)
	}

	return r
}

func (r *Registry) register(def protocol.Tool, fn handler) {
	r.defs = append(r.defs, def)
	r.handlers[def.Name] = fn
}

func (r *Registry) registerGameTools(gameType string) {
	switch gameType {
	case types.GameTypeGuess:
		params := []param{
			{"userAnswer", "User's spoken/typed answer"},
			{"correctWord", "Correct Chinese word"},
			{"correctPinyin", "Correct Pinyin"},
		}
		r.register(protocol.Tool{
			Type:        "function",
			Name:        "checkChineseGuessCorrect",
			Description: "User's Chinese guess matched the target word.",
			Parameters:  stringSchema(params),
		}, r.correctAnswer)
		r.register(protocol.Tool{
			Type:        "function",
			Name:        "checkChineseGuessIncorrect",
			Description: "User's Chinese guess did NOT match the target word.",
			Parameters:  stringSchema(params),
		}, r.incorrectAnswer)

	case types.GameTypeReverse:
		params := []param{
			{"userAnswer", "User's spoken/typed answer"},
			{"chineseWord", "Correct Chinese word"},
			{"correctMeaning", "Correct English meaning"},
		}
		r.register(protocol.Tool{
			Type:        "function",
			Name:        "checkEnglishMeaningCorrect",
			Description: "User's English meaning for the Chinese word was correct.",
			Parameters:  stringSchema(params),
		}, r.correctAnswer)
		r.register(protocol.Tool{
			Type:        "function",
			Name:        "checkEnglishMeaningIncorrect",
			Description: "User's English meaning for the Chinese word was incorrect.",
			Parameters:  stringSchema(params),
		}, r.incorrectAnswer)

	case types.GameTypeSentenceMaker:
		params := []param{
			{"userSentence", "User's spoken/typed sentence"},
			{"targetWord", "Correct Chinese word"},
			{"targetPinyin", "Correct Pinyin"},
		}
		r.register(protocol.Tool{
			Type:        "function",
			Name:        "checkSentenceCorrect",
			Description: "User's sentence used the target Chinese word correctly and is contextually appropriate.",
			Parameters:  stringSchema(params),
		}, r.correctAnswer)
		r.register(protocol.Tool{
			Type:        "function",
			Name:        "checkSentenceIncorrect",
			Description: "User's sentence did NOT use the target Chinese word correctly or is inappropriate.",
			Parameters:  stringSchema(params),
		}, r.incorrectAnswer)
	}
}

// Definitions returns the advertised tools in registration order.
func (r *Registry) Definitions() []protocol.Tool {
	out := make([]protocol.Tool, len(r.defs))
	copy(out, r.defs)
	return out
}

// Dispatch executes one model-initiated tool call. Unknown names and
// handler failures come back as structured failure results so the model
// can react; dispatch itself never fails.
func (r *Registry) Dispatch(name, argsJSON string) Result {
	fn, ok := r.handlers[name]
	if !ok {
		log.Printf("Tool dispatch failed: unknown function name=%s", name)
		return Result{"success": false, "message": fmt.Sprintf("Unknown function: %s", name)}
	}

	args := make(map[string]any)
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			log.Printf("Tool arguments unparseable, using empty set name=%s error=%v", name, err)
			args = make(map[string]any)
		}
	}

	return fn(args)
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func (r *Registry) writeCharacter(args map[string]any) Result {
	character := stringArg(args, "character")
	if r.hooks.DisplayCharacter != nil {
		r.hooks.DisplayCharacter(character)
	}
	return Result{"success": true, "characterDisplayed": character}
}

func (r *Registry) reviewMissedWordsSuccess(args map[string]any) Result {
	if r.engine == nil {
		return Result{"success": false, "message": "No game in progress."}
	}

	items, err := r.engine.StartReview()
	if err != nil {
		return Result{"success": false, "message": "No missed words to review."}
	}

	log.Printf("Review round started over missed words count=%d", len(items))
	return Result{"success": true, "message": "Review session initiated.", "totalMissed": len(items)}
}

func (r *Registry) reviewMissedWordsEmpty(args map[string]any) Result {
	return Result{"success": true, "message": "No missed words available for review."}
}

func (r *Registry) endSession(args map[string]any) Result {
	reason := stringArg(args, "reason")
	log.Printf("Session end requested by model reason=%s", reason)

	if r.hooks.AppendStatus != nil {
		r.hooks.AppendStatus(fmt.Sprintf("Session ending: %s", reason))
	}
	if r.hooks.ScheduleEnd != nil {
		r.hooks.ScheduleEnd(reason)
	}

	return Result{"success": true, "message": "Session termination sequence initiated."}
}

// correctAnswer grades the current item right and reports progression.
func (r *Registry) correctAnswer(args map[string]any) Result {
	return r.gradeAnswer(args, true)
}

// incorrectAnswer grades the current item wrong, recording it for review.
func (r *Registry) incorrectAnswer(args map[string]any) Result {
	return r.gradeAnswer(args, false)
}

func (r *Registry) gradeAnswer(args map[string]any, correct bool) Result {
	if r.engine == nil {
		return Result{"success": false, "message": "No game in progress."}
	}

	var progress game.Progress
	var err error
	if correct {
		progress, err = r.engine.Correct()
	} else {
		progress, err = r.engine.Incorrect()
	}
	if err != nil {
		return Result{"success": false, "message": err.Error()}
	}

	result := Result{
		"success":       true,
		"isCorrect":     correct,
		"isLastWord":    progress.Finished,
		"nextWordIndex": progress.NextIndex,
		"totalWords":    r.engine.Total(),
	}

	// Echo the model's arguments back so it keeps its own bookkeeping.
	for k, v := range args {
		if _, taken := result[k]; !taken {
			result[k] = v
		}
	}

	return result
}
