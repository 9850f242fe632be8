// Package prompt builds the initial instruction text for each session
// mode. The text is sent as a user-origin message right after the
// session configuration lands.
package prompt

import (
	"fmt"
	"strings"

	"xiaoqiu/pkg/types"
)

// Build generates the mode-specific opening prompt. The memory summary
// may be empty; it only feeds talk mode.
func Build(settings *types.Settings, memory string) (string, error) {
	if settings == nil {
		return "", fmt.Errorf("prompt generation failed: %w", types.ErrMissingContent)
	}

	if settings.Mode != types.ModeTalk && settings.TopicTitle == "" && settings.GameType == "" {
		return "", fmt.Errorf("prompt generation failed: no topic or game selected: %w", types.ErrMissingContent)
	}

	if (settings.Mode == types.ModeLesson || settings.Mode == types.ModePlay) &&
		len(settings.Phrases) == 0 && len(settings.Conversation) == 0 {
		return "", fmt.Errorf("prompt generation failed: no words or dialogue loaded: %w", types.ErrMissingContent)
	}

	switch settings.Mode {
	case types.ModeLesson:
		return buildLessonPrompt(settings), nil
	case types.ModePlay:
		return buildPlayPrompt(settings)
	default:
		return buildTalkPrompt(settings, memory), nil
	}
}

// englishShare maps proficiency level to the minimum share of English
// the tutor should use.
func englishShare(level int) string {
	switch level {
	case 1:
		return "90-100%"
	case 2:
		return "80%"
	case 3:
		return "60%"
	default:
		return "50%"
	}
}

func buildTalkPrompt(settings *types.Settings, memory string) string {
	level := settings.Level
	share := englishShare(level)

	var b strings.Builder

	b.WriteString("IMPORTANT SYSTEM RULES (ENFORCE AT ALL TIMES):\n")
	fmt.Fprintf(&b, "- You MUST use only vocabulary and grammar from HSK Level %d or below.\n", level)
	if level < 5 {
		fmt.Fprintf(&b, "- You MUST speak in ENGLISH for AT LEAST %s of your response.\n", share)
		b.WriteString("- DO NOT write full Chinese sentences unless the user already knows them.\n")
		b.WriteString("- NEVER teach Chinese words or grammar without explaining them clearly in ENGLISH first.\n")
	} else {
		b.WriteString("- Use natural Chinese. English only if the user requests it.\n")
	}

	fmt.Fprintf(&b, "\nThe user is at HSK Level %d. Strictly limit vocabulary and grammar to this level.\n", level)

	if len(settings.TalkWords) > 0 && level < 5 {
		words := make([]string, 0, len(settings.TalkWords))
		for _, w := range settings.TalkWords {
			words = append(words, w.Key())
		}
		fmt.Fprintf(&b, "\nTarget Vocabulary: Use these words as much as possible: %s。\n", strings.Join(words, "、"))
		b.WriteString("Avoid introducing vocabulary outside this list unless absolutely necessary.\n")
	}

	b.WriteString("\nYou are 小球 (Xiǎoqiú), a warm, friendly, encouraging AI who chats daily with the user to help them practice spoken Mandarin.\n")
	b.WriteString("This is Talk Mode, a freeform conversation that feels natural, like talking to a buddy.\n")
	b.WriteString("Start casually: greet the user, ask about their day, feelings, or plans.\n")
	b.WriteString("Keep responses short (1-3 sentences). Always give the user room to reply. Ask simple, open-ended questions.\n")
	b.WriteString("Avoid loops, forced topics, or long Chinese sentences. Personalize only when it feels natural. Never mention you have memory access.\n")

	if memory != "" {
		fmt.Fprintf(&b, "\nUser Context Information:\n%s\n", memory)
		b.WriteString("Use this to personalize your tone and questions, but NEVER mention that you have memory data.\n")
	}

	return b.String()
}

func buildLessonPrompt(settings *types.Settings) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are 小球 (Xiǎoqiú), a friendly, helpful, and knowledgeable Chinese tutor for HSK Level %d. Your goal is to help the student practice and understand Chinese naturally. Encourage the student to speak more.\n", settings.Level)
	fmt.Fprintf(&b, "Today's topic: %s (%s).\n\n", settings.TopicTitle, settings.EnglishTitle)
	fmt.Fprintf(&b, "Start with: Hey, 小球 here! Let's practice %s for HSK %d.\n\n", settings.TopicTitle, settings.Level)

	if len(settings.Phrases) > 0 {
		b.WriteString("We'll cover these vocabulary words:\n")
		for i, p := range settings.Phrases {
			fmt.Fprintf(&b, "%d. %s (%s) - %s\n", i+1, p.Key(), p.Pinyin, p.English)
		}
		first := settings.Phrases[0]
		b.WriteString("\nVocabulary Practice Flow:\n")
		fmt.Fprintf(&b, "1. Introduce ONE word at a time, starting with %s (%s) meaning %s.\n", first.Key(), first.Pinyin, first.English)
		b.WriteString("2. Provide ONE clear, natural example sentence using the word.\n")
		b.WriteString("3. Ask the student to create their own sentence using the target word.\n")
		b.WriteString("4. Evaluate their sentence: does it use the target word correctly in context? Is the basic grammar understandable?\n")
		b.WriteString("5. Apply the Correction Strategy below, then introduce the NEXT word and repeat.\n\n")
	}

	if len(settings.Conversation) > 0 {
		b.WriteString("We'll also practice this dialogue:\n")
		for i, l := range settings.Conversation {
			fmt.Fprintf(&b, "%d. %s: %s (%s) - %s\n", i+1, l.Character, l.Chinese, l.Pinyin, l.English)
		}
		first := settings.Conversation[0]
		b.WriteString("\nDialogue Practice Flow:\n")
		fmt.Fprintf(&b, "1. Present ONE line of the dialogue AT A TIME, starting with line 1: %s: %s\n", first.Character, first.Chinese)
		b.WriteString("2. Ask the student to explain what it means in their own words.\n")
		b.WriteString("3. Evaluate their understanding, apply the Correction Strategy, then present the NEXT line and repeat.\n\n")
	}

	b.WriteString("---\nCorrection Strategy & Handling Student Questions:\n")
	b.WriteString("- Correct Attempt: Praise warmly! Then move on to the next item.\n")
	b.WriteString("- Close Attempt: Acknowledge effort, gently point out the specific error, give 1 retry. If still incorrect, provide the correct model and move on.\n")
	b.WriteString("- Incorrect Attempt: Stay encouraging. Guide by breaking it down or provide a clear model, check understanding briefly, then move on.\n")
	b.WriteString("- Student Questions: Explain simply in 3-5 sentences max with simple examples, check understanding, then guide back to the next practice item.\n")
	b.WriteString("- Off-Topic: Acknowledge briefly, politely redirect to the practice.\n")
	b.WriteString("---\nGeneral Guidelines:\n")
	b.WriteString("- Keep standard turns concise (under 3 sentences).\n")
	b.WriteString("- Be consistently patient and very encouraging.\n")
	b.WriteString("- Move on after 1-2 unsuccessful attempts on a single item.\n")
	b.WriteString("- Prioritize getting the student to speak.\n")
	fmt.Fprintf(&b, "- Completion: once all content is covered, conclude positively, e.g. \"We've covered everything for %s! Well done!\". You don't need to call endSession unless the user asks to stop.\n", settings.TopicTitle)

	return b.String()
}

func gameInstructions(gameType string) string {
	switch gameType {
	case types.GameTypeGuess:
		return "I'll give the English, you say or type the Chinese!"
	case types.GameTypeReverse:
		return "I'll say Chinese, you give the English meaning (say or type)!"
	case types.GameTypeSentenceMaker:
		return "I'll give a word, you make a sentence (say or type)!"
	default:
		return "Let's practice some Chinese!"
	}
}

func gameRules(gameType string) string {
	switch gameType {
	case types.GameTypeGuess:
		return "- I present the English meaning.\n- You provide the Chinese response (spoken/typed).\n- NEVER surround the word with quotes or add periods."
	case types.GameTypeReverse:
		return "- I say the Chinese word.\n- You provide the English meaning (spoken/typed).\n- NEVER surround the word with quotes or add periods."
	case types.GameTypeSentenceMaker:
		return "- I state the target Chinese word.\n- I give an example sentence.\n- You create YOUR OWN sentence using the word (spoken/typed).\n- NEVER surround the word with quotes or add periods."
	default:
		return "- Present words clearly.\n- Encourage practice.\n- Keep it fun!"
	}
}

func buildPlayPrompt(settings *types.Settings) (string, error) {
	if len(settings.Phrases) == 0 {
		return "", fmt.Errorf("prompt generation failed: game %q has no words loaded: %w", settings.GameName, types.ErrMissingContent)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "You are 小球 (Xiǎoqiú), the fun and energetic host of the Chinese game %s! 🎮\n", settings.GameName)
	fmt.Fprintf(&b, "Game Goal: %s\n\n", settings.GameDesc)
	fmt.Fprintf(&b, "Start with: Hey there! I'm 小球! Ready to play %s? %s\n\n", settings.GameName, gameInstructions(settings.GameType))

	fmt.Fprintf(&b, "Today's words (%d total):\n", len(settings.Phrases))
	for i, p := range settings.Phrases {
		fmt.Fprintf(&b, "%d. %s (%s) - %s\n", i+1, p.Key(), p.Pinyin, p.English)
	}

	fmt.Fprintf(&b, "\n---\nGame Flow & Rules:\n%s\n", gameRules(settings.GameType))
	b.WriteString("1. Present the first word/challenge based on the rules.\n")
	b.WriteString("2. Wait for the user's response (spoken or typed).\n")
	b.WriteString("3. As SOON as the user responds, IMMEDIATELY call the correct function with the user's answer and the correct details.\n")
	b.WriteString("4. The function result will contain 'isCorrect' (true/false) and 'isLastWord' (true/false).\n")
	b.WriteString("5. If isCorrect is true: be ENTHUSIASTIC! 🎉 Mention streaks after 3 correct in a row! Then, if isLastWord is FALSE, immediately present the next challenge.\n")
	b.WriteString("6. If isCorrect is false: be gentle, briefly state the correct answer, then, if isLastWord is FALSE, immediately present the next challenge.\n")
	b.WriteString("IMPORTANT Notes:\n")
	b.WriteString("- Function Calls are Key: present the challenge and call the correct function immediately upon user response. The function handles scoring and progression.\n")
	b.WriteString("- Minimal Chat: keep your turns very short.\n")
	b.WriteString("- No Extra Help: no hints or explanations beyond stating the correct answer on a miss.\n")

	return b.String(), nil
}
