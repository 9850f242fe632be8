// xiaoqiu is a terminal client for spoken Chinese practice against a
// realtime conversational tutor. It negotiates the audio+data session,
// drives lesson and game configuration, and archives each conversation
// locally.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"xiaoqiu/internal/archive"
	"xiaoqiu/internal/config"
	"xiaoqiu/internal/controller"
	"xiaoqiu/internal/providers"
	"xiaoqiu/internal/webrtc"
	"xiaoqiu/internal/websocket"
	"xiaoqiu/pkg/interfaces"
	"xiaoqiu/pkg/types"
)

type application struct {
	cfg        *config.Config
	store      *archive.Store
	lessons    *providers.LessonClient
	engine     *audioEngine
	controller *controller.Controller
	userID     string

	talking bool
}

func newApplication(cfg *config.Config, userID string) (*application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := archive.NewStore(cfg.Archive.Path, cfg.Archive.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	engine, err := newAudioEngine(cfg.Audio)
	if err != nil {
		store.Close()
		return nil, err
	}

	var dialer interfaces.TransportDialer
	switch cfg.Transport.Kind {
	case config.TransportWebSocket:
		dialer = websocket.NewDialer(realtimeWSURL(cfg.Provider), cfg.Transport.DialTimeout)
	default:
		dialer = webrtc.NewDialer(cfg.Transport.StunURL)
	}

	app := &application{
		cfg:     cfg,
		store:   store,
		lessons: providers.NewLessonClient(cfg.Provider.BaseURL, cfg.Provider.RequestTimeout),
		engine:  engine,
		userID:  userID,
	}

	app.controller = controller.NewController(cfg, controller.Deps{
		Dialer:     dialer,
		Tokens:     providers.NewTokenClient(cfg.Provider.BaseURL, cfg.Provider.RequestTimeout),
		Negotiator: providers.NewSDPNegotiator(cfg.Provider.RealtimeURL, cfg.Provider.Model, cfg.Provider.RequestTimeout),
		Memory:     providers.NewMemoryClient(cfg.Provider.BaseURL, cfg.Provider.RequestTimeout),
		Archive:    store,
		Mic:        engine,
		NewSink:    engine.NewSink,
		Stats:      engine.stats,
		Hooks: controller.Hooks{
			DisplayCharacter: func(character string) { fmt.Printf("\n  %s\n\n", character) },
			AppendStatus:     func(text string) { fmt.Printf("· %s\n", text) },
		},
	})

	return app, nil
}

// realtimeWSURL rewrites the realtime endpoint for the websocket
// transport, which dials it directly instead of exchanging SDP.
func realtimeWSURL(p *config.ProviderConfig) string {
	url := p.RealtimeURL
	url = strings.Replace(url, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return url + "?model=" + p.Model
}

func (app *application) run(ctx context.Context) {
	fmt.Println("xiaoqiu - spoken Chinese practice")
	fmt.Println("Commands:")
	fmt.Println("  topics <level>                          list lesson topics")
	fmt.Println("  talk <level>                            start a free conversation")
	fmt.Println("  lesson <level> <topic#> [chunk#]        start a lesson")
	fmt.Println("  play <guess|reverse|sentence-maker> <level> <topic#> [chunk#]")
	fmt.Println("  say <text>                              send text to the tutor")
	fmt.Println("  mic                                     toggle push-to-talk")
	fmt.Println("  history [n]                             list archived conversations")
	fmt.Println("  delete <id>                             delete an archived conversation")
	fmt.Println("  stop                                    end the session")
	fmt.Println("  quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "topics":
			app.listTopics(ctx, fields[1:])
		case "talk":
			app.startTalk(ctx, fields[1:])
		case "lesson":
			app.startLesson(ctx, fields[1:])
		case "play":
			app.startPlay(ctx, fields[1:])
		case "say":
			if len(fields) < 2 {
				fmt.Println("usage: say <text>")
				continue
			}
			app.controller.SendUserText(strings.TrimPrefix(line, "say "))
		case "mic":
			app.toggleMic()
		case "history":
			app.listHistory(fields[1:])
		case "delete":
			if len(fields) < 2 {
				fmt.Println("usage: delete <id>")
				continue
			}
			if err := app.store.DeleteConversation(fields[1]); err != nil {
				fmt.Printf("· %v\n", err)
			}
		case "stop":
			app.controller.Stop(false)
		case "quit", "q", "exit":
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func (app *application) start(ctx context.Context, settings *types.Settings) {
	ctx, cancel := context.WithTimeout(ctx, app.cfg.Transport.DialTimeout)
	defer cancel()

	if err := app.controller.Start(ctx, settings, app.userID); err != nil {
		fmt.Printf("· %v\n", err)
	}
}

func (app *application) startTalk(ctx context.Context, args []string) {
	level, ok := parseLevel(args)
	if !ok {
		fmt.Println("usage: talk <level>")
		return
	}

	settings := &types.Settings{Mode: types.ModeTalk, Level: level}
	words, err := app.lessons.Words(ctx, level)
	if err != nil {
		log.Printf("Word list fetch failed, starting without target vocabulary level=%d error=%v", level, err)
	} else {
		settings.TalkWords = words
	}

	app.start(ctx, settings)
}

func (app *application) startLesson(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: lesson <level> <topic#> [chunk#]")
		return
	}
	level, ok := parseLevel(args[:1])
	if !ok {
		fmt.Println("usage: lesson <level> <topic#> [chunk#]")
		return
	}

	lesson, ok := app.pickTopic(ctx, level, args[1])
	if !ok {
		return
	}

	chunkIdx := 0
	if len(args) > 2 {
		chunkIdx, _ = strconv.Atoi(args[2])
	}
	chunks := types.ChunkWords(lesson.NewWords)
	if len(chunks) == 0 {
		fmt.Println("· topic has no vocabulary")
		return
	}
	if chunkIdx < 0 || chunkIdx >= len(chunks) {
		fmt.Printf("· chunk out of range, topic has %d\n", len(chunks))
		return
	}

	settings := &types.Settings{
		Mode:         types.ModeLesson,
		Level:        level,
		TopicTitle:   lesson.TopicTitle,
		EnglishTitle: lesson.EnglishTitle,
		Phrases:      chunks[chunkIdx],
	}
	if sentences := types.ChunkSentences(lesson.Conversation); len(sentences) > 0 {
		settings.Conversation = sentences[0]
	}

	app.start(ctx, settings)
}

var gameNames = map[string][2]string{
	types.GameTypeGuess:         {"Guess the Word", "Hear the English meaning, say the Chinese word."},
	types.GameTypeReverse:       {"What Does It Mean", "Hear the Chinese word, say the English meaning."},
	types.GameTypeSentenceMaker: {"Sentence Builder", "Use the target word in your own sentence."},
}

func (app *application) startPlay(ctx context.Context, args []string) {
	if len(args) < 3 {
		fmt.Println("usage: play <guess|reverse|sentence-maker> <level> <topic#> [chunk#]")
		return
	}
	gameType := args[0]
	if !types.IsValidGameType(gameType) {
		fmt.Printf("· unknown game type %q\n", gameType)
		return
	}
	level, ok := parseLevel(args[1:2])
	if !ok {
		fmt.Println("usage: play <guess|reverse|sentence-maker> <level> <topic#> [chunk#]")
		return
	}

	lesson, ok := app.pickTopic(ctx, level, args[2])
	if !ok {
		return
	}

	chunkIdx := 0
	if len(args) > 3 {
		chunkIdx, _ = strconv.Atoi(args[3])
	}
	chunks := types.ChunkWords(lesson.NewWords)
	if chunkIdx < 0 || chunkIdx >= len(chunks) {
		fmt.Printf("· chunk out of range, topic has %d\n", len(chunks))
		return
	}

	meta := gameNames[gameType]
	app.start(ctx, &types.Settings{
		Mode:       types.ModePlay,
		Level:      level,
		TopicTitle: lesson.TopicTitle,
		GameType:   gameType,
		GameName:   meta[0],
		GameDesc:   meta[1],
		Phrases:    chunks[chunkIdx],
	})
}

func (app *application) pickTopic(ctx context.Context, level int, arg string) (types.Lesson, bool) {
	idx, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Printf("· topic index must be a number, got %q\n", arg)
		return types.Lesson{}, false
	}

	lessons, err := app.lessons.Lessons(ctx, level)
	if err != nil {
		fmt.Printf("· lesson fetch failed: %v\n", err)
		return types.Lesson{}, false
	}
	if idx < 0 || idx >= len(lessons) {
		fmt.Printf("· topic out of range, level %d has %d topics\n", level, len(lessons))
		return types.Lesson{}, false
	}
	return lessons[idx], true
}

func (app *application) listTopics(ctx context.Context, args []string) {
	level, ok := parseLevel(args)
	if !ok {
		fmt.Println("usage: topics <level>")
		return
	}

	lessons, err := app.lessons.Lessons(ctx, level)
	if err != nil {
		fmt.Printf("· lesson fetch failed: %v\n", err)
		return
	}
	for i, lesson := range lessons {
		fmt.Printf("  %d. %s (%s) - %d words\n", i, lesson.TopicTitle, lesson.EnglishTitle, len(lesson.NewWords))
	}
}

func (app *application) toggleMic() {
	if app.talking {
		app.controller.ReleaseTalk()
		app.talking = false
		fmt.Println("· mic off")
	} else {
		app.controller.PressTalk()
		app.talking = true
		fmt.Println("· mic on")
	}
}

func (app *application) listHistory(args []string) {
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			limit = n
		}
	}

	records, err := app.store.ListConversations(app.userID, limit)
	if err != nil {
		fmt.Printf("· %v\n", err)
		return
	}
	for _, rec := range records {
		fmt.Printf("  %s  %s  %-6s  %d turns\n",
			rec.ID, rec.StartedAt.Format("2006-01-02 15:04"), rec.Mode, len(rec.Transcript))
	}
}

func (app *application) shutdown() {
	app.controller.Close()
	app.engine.Close()
	if err := app.store.Close(); err != nil {
		log.Printf("Archive close failed error=%v", err)
	}
}

func parseLevel(args []string) (int, bool) {
	if len(args) == 0 {
		return 0, false
	}
	level, err := strconv.Atoi(args[0])
	if err != nil || level < 1 || level > 6 {
		return 0, false
	}
	return level, true
}

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	userID := flag.String("user", "", "learner identity for memory and archives")
	flag.Parse()

	// .env is optional; real env vars win.
	_ = godotenv.Load()

	cfg := config.LoadConfigWithPrecedence(*configPath)

	user := *userID
	if user == "" {
		user = os.Getenv("XIAOQIU_USER_ID")
	}

	app, err := newApplication(cfg, user)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
		app.shutdown()
		os.Exit(0)
	}()

	app.run(ctx)
	app.shutdown()
}
