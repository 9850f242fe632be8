package tools

import (
	"testing"

	"xiaoqiu/internal/game"
	"xiaoqiu/pkg/types"
)

func playSettings(gameType string) *types.Settings {
	return &types.Settings{
		Mode:     types.ModePlay,
		Level:    1,
		GameType: gameType,
		Phrases: []types.Phrase{
			{Chinese: "苹果", Pinyin: "píngguǒ", English: "apple"},
			{Chinese: "香蕉", Pinyin: "xiāngjiāo", English: "banana"},
		},
	}
}

func TestRegistry_BaseToolsAlwaysPresent(t *testing.T) {
	registry := NewRegistry(&types.Settings{Mode: types.ModeTalk, Level: 1}, nil, Hooks{})

	defs := registry.Definitions()
	names := make(map[string]bool)
	for _, def := range defs {
		names[def.Name] = true
		if def.Type != "function" {
			t.Errorf("Tool %s should have type function, got %s", def.Name, def.Type)
		}
	}

	for _, want := range []string{"writeCharacter", "reviewMissedWordsSuccess", "reviewMissedWordsEmpty", "endSession"} {
		if !names[want] {
			t.Errorf("Base tool %s missing from definitions", want)
		}
	}

	// Talk mode gets no game tools.
	if names["checkChineseGuessCorrect"] {
		t.Error("Talk mode should not advertise game tools")
	}
}

func TestRegistry_GameToolsPerGameType(t *testing.T) {
	cases := []struct {
		gameType string
		want     []string
	}{
		{types.GameTypeGuess, []string{"checkChineseGuessCorrect", "checkChineseGuessIncorrect"}},
		{types.GameTypeReverse, []string{"checkEnglishMeaningCorrect", "checkEnglishMeaningIncorrect"}},
		{types.GameTypeSentenceMaker, []string{"checkSentenceCorrect", "checkSentenceIncorrect"}},
	}

	for _, tc := range cases {
		settings := playSettings(tc.gameType)
		engine := game.NewEngine(settings.Phrases)
		registry := NewRegistry(settings, engine, Hooks{})

		names := make(map[string]bool)
		for _, def := range registry.Definitions() {
			names[def.Name] = true
		}

		for _, want := range tc.want {
			if !names[want] {
				t.Errorf("Game type %s should advertise %s", tc.gameType, want)
			}
		}
	}
}

func TestRegistry_SchemaAllRequired(t *testing.T) {
	settings := playSettings(types.GameTypeGuess)
	registry := NewRegistry(settings, game.NewEngine(settings.Phrases), Hooks{})

	for _, def := range registry.Definitions() {
		if def.Name != "checkChineseGuessCorrect" {
			continue
		}
		properties, ok := def.Parameters["properties"].(map[string]any)
		if !ok {
			t.Fatal("Schema should carry a properties map")
		}
		required, ok := def.Parameters["required"].([]string)
		if !ok {
			t.Fatal("Schema should carry a required list")
		}
		if len(required) != len(properties) {
			t.Errorf("All parameters should be required: %d properties, %d required", len(properties), len(required))
		}
		for _, name := range required {
			prop, ok := properties[name].(map[string]any)
			if !ok {
				t.Fatalf("Required parameter %s missing from properties", name)
			}
			if prop["type"] != "string" {
				t.Errorf("Parameter %s should be string-typed, got %v", name, prop["type"])
			}
		}
	}
}

func TestRegistry_DispatchUnknownFunction(t *testing.T) {
	registry := NewRegistry(&types.Settings{Mode: types.ModeTalk, Level: 1}, nil, Hooks{})

	result := registry.Dispatch("launchRocket", "{}")

	if result["success"] != false {
		t.Error("Unknown function should produce a failure result")
	}
	if result["message"] != "Unknown function: launchRocket" {
		t.Errorf("Unexpected message: %v", result["message"])
	}
}

func TestRegistry_DispatchMalformedArguments(t *testing.T) {
	var displayed string
	hooks := Hooks{DisplayCharacter: func(c string) { displayed = c }}
	registry := NewRegistry(&types.Settings{Mode: types.ModeTalk, Level: 1}, nil, hooks)

	// Malformed argument JSON falls back to an empty argument set.
	result := registry.Dispatch("writeCharacter", "not json at all")

	if result["success"] != true {
		t.Errorf("Dispatch with malformed args should still run the handler: %v", result)
	}
	if displayed != "" {
		t.Errorf("Expected empty character, got %s", displayed)
	}
}

func TestRegistry_WriteCharacter(t *testing.T) {
	var displayed string
	hooks := Hooks{DisplayCharacter: func(c string) { displayed = c }}
	registry := NewRegistry(&types.Settings{Mode: types.ModeTalk, Level: 1}, nil, hooks)

	result := registry.Dispatch("writeCharacter", `{"character":"水"}`)

	if result["success"] != true {
		t.Errorf("writeCharacter should succeed: %v", result)
	}
	if result["characterDisplayed"] != "水" {
		t.Errorf("Expected characterDisplayed 水, got %v", result["characterDisplayed"])
	}
	if displayed != "水" {
		t.Errorf("Hook should receive the character, got %s", displayed)
	}
}

func TestRegistry_GradingAdvancesGame(t *testing.T) {
	settings := playSettings(types.GameTypeGuess)
	engine := game.NewEngine(settings.Phrases)
	registry := NewRegistry(settings, engine, Hooks{})

	result := registry.Dispatch("checkChineseGuessCorrect", `{"userAnswer":"苹果","correctWord":"苹果","correctPinyin":"píngguǒ"}`)

	if result["success"] != true || result["isCorrect"] != true {
		t.Errorf("Correct answer should report success: %v", result)
	}
	if result["isLastWord"] != false {
		t.Errorf("First of two words is not last: %v", result)
	}
	if result["nextWordIndex"] != 1 {
		t.Errorf("Expected next index 1, got %v", result["nextWordIndex"])
	}
	if result["totalWords"] != 2 {
		t.Errorf("Expected 2 total words, got %v", result["totalWords"])
	}
	// Model arguments are echoed back.
	if result["userAnswer"] != "苹果" {
		t.Errorf("Expected userAnswer echoed, got %v", result["userAnswer"])
	}

	result = registry.Dispatch("checkChineseGuessIncorrect", `{"userAnswer":"梨","correctWord":"香蕉","correctPinyin":"xiāngjiāo"}`)

	if result["isCorrect"] != false {
		t.Errorf("Incorrect answer should report isCorrect false: %v", result)
	}
	if result["isLastWord"] != true {
		t.Errorf("Second of two words is last: %v", result)
	}
	if result["nextWordIndex"] != game.FinishedIndex {
		t.Errorf("Expected finished sentinel, got %v", result["nextWordIndex"])
	}

	if got := len(engine.Missed()); got != 1 {
		t.Errorf("Incorrect answer should record a missed word, got %d", got)
	}
	if engine.CorrectCount() != 1 {
		t.Errorf("Expected 1 correct answer, got %d", engine.CorrectCount())
	}
}

func TestRegistry_ReviewMissedWords(t *testing.T) {
	settings := playSettings(types.GameTypeGuess)
	engine := game.NewEngine(settings.Phrases)
	registry := NewRegistry(settings, engine, Hooks{})

	// Nothing missed yet: review request fails as a structured result.
	result := registry.Dispatch("reviewMissedWordsSuccess", "{}")
	if result["success"] != false {
		t.Errorf("Review with no missed words should fail: %v", result)
	}

	registry.Dispatch("checkChineseGuessIncorrect", "{}")

	result = registry.Dispatch("reviewMissedWordsSuccess", "{}")
	if result["success"] != true {
		t.Errorf("Review with missed words should succeed: %v", result)
	}
	if result["totalMissed"] != 1 {
		t.Errorf("Expected 1 missed word, got %v", result["totalMissed"])
	}
	if engine.Index() != 0 {
		t.Errorf("Review should restart the game, index=%d", engine.Index())
	}

	// The empty variant always acknowledges.
	result = registry.Dispatch("reviewMissedWordsEmpty", "{}")
	if result["success"] != true {
		t.Errorf("reviewMissedWordsEmpty should succeed: %v", result)
	}
}

func TestRegistry_EndSession(t *testing.T) {
	var status string
	var endReason string
	hooks := Hooks{
		AppendStatus: func(text string) { status = text },
		ScheduleEnd:  func(reason string) { endReason = reason },
	}
	registry := NewRegistry(&types.Settings{Mode: types.ModeTalk, Level: 1}, nil, hooks)

	result := registry.Dispatch("endSession", `{"reason":"lesson complete"}`)

	if result["success"] != true {
		t.Errorf("endSession should succeed: %v", result)
	}
	if endReason != "lesson complete" {
		t.Errorf("ScheduleEnd should receive the reason, got %s", endReason)
	}
	if status != "Session ending: lesson complete" {
		t.Errorf("Unexpected status text: %s", status)
	}
}

func TestRegistry_GradingWithoutEngine(t *testing.T) {
	// A registry built without an engine still dispatches review calls
	// as structured failures.
	registry := NewRegistry(playSettings(types.GameTypeGuess), nil, Hooks{})

	result := registry.Dispatch("checkChineseGuessCorrect", "{}")
	if result["success"] != false {
		t.Errorf("Grading without an engine should fail: %v", result)
	}

	result = registry.Dispatch("reviewMissedWordsSuccess", "{}")
	if result["success"] != false {
		t.Errorf("Review without an engine should fail: %v", result)
	}
}
