// SkillStream - terminal client for the employee learning platform.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/skillstream/skillstream/internal/backend"
	"github.com/skillstream/skillstream/internal/chat"
	"github.com/skillstream/skillstream/internal/config"
	"github.com/skillstream/skillstream/internal/domain"
	"github.com/skillstream/skillstream/internal/session"
)

const helpText = `Commands:
  /new               start a new conversation
  /list              list your conversations
  /select <n>        switch to conversation n from /list
  /history           reload and show the active conversation's messages
  /end               end the active conversation (cannot be undone)
  /delete <n>        delete conversation n from /list (cannot be undone)
  /quiz              take the quiz for the active conversation
  /stats             show your points, level and rank
  /achievements      show achievement progress
  /leaderboard       show the points leaderboard
  /logout            sign out
  /quit              exit
Anything else is sent as a chat message.`

func main() {
	// Keep stdout clean for chat output; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	repo, err := session.NewSQLite(cfg.DBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to open session database:", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Warn("failed to close session database", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.NewContext(ctx, repo, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to restore session:", err)
		os.Exit(1)
	}

	client := backend.NewClient(backend.ClientConfig{
		BaseURL:           cfg.APIBaseURL,
		RequestTimeout:    cfg.RequestTimeout,
		StreamIdleTimeout: cfg.StreamIdleTimeout,
	}, logger)

	app := &app{
		client: client,
		sess:   sess,
		store:  chat.NewStore(client, sess, logger),
		in:     bufio.NewScanner(os.Stdin),
	}
	app.store.SetTokenListener(func(token string) {
		fmt.Print(token)
	})

	if err := app.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Println("\nGoodbye!")
}

type app struct {
	client *backend.Client
	sess   *session.Context
	store  *chat.Store
	in     *bufio.Scanner
}

func (a *app) run(ctx context.Context) error {
	fmt.Println("SkillStream — learn something new, earn points doing it.")

	if a.sess.User() == nil {
		if err := a.login(ctx); err != nil {
			return err
		}
	}
	user := a.sess.User()
	fmt.Printf("Signed in as %s (level %d, %d points).\n", user.FullName, user.Level, user.TotalPoints)
	fmt.Println(`Type /help for commands.`)

	a.store.LoadConversations(ctx)
	if snap := a.store.Snapshot(); snap.Active != nil {
		fmt.Printf("Resuming conversation: %s\n", snap.Active.DisplayTitle())
		a.printMessages(snap.Messages)
	}

	for {
		fmt.Print("> ")
		line, ok := a.readLine(ctx)
		if !ok {
			return ctx.Err()
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			a.send(ctx, line)
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/help":
			fmt.Println(helpText)
		case "/new":
			a.newConversation(ctx)
		case "/list":
			a.listConversations()
		case "/select":
			a.selectConversation(ctx, arg)
		case "/history":
			a.showHistory(ctx)
		case "/end":
			a.endConversation(ctx)
		case "/delete":
			a.deleteConversation(ctx, arg)
		case "/quiz":
			a.takeQuiz(ctx)
		case "/stats":
			a.showStats(ctx)
		case "/achievements":
			a.showAchievements(ctx)
		case "/leaderboard":
			a.showLeaderboard(ctx)
		case "/logout":
			if err := a.sess.SignOut(ctx); err != nil {
				fmt.Println("Sign out failed:", err)
				continue
			}
			fmt.Println("Signed out.")
			return nil
		case "/quit", "/exit":
			return nil
		default:
			fmt.Println("Unknown command. Type /help for commands.")
		}
	}
}

// readLine reads one line from stdin, returning ok=false on EOF or when the
// context is cancelled.
func (a *app) readLine(ctx context.Context) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	if !a.in.Scan() {
		return "", false
	}
	return a.in.Text(), true
}

func (a *app) login(ctx context.Context) error {
	for {
		fmt.Print("Username: ")
		username, ok := a.readLine(ctx)
		if !ok {
			return ctx.Err()
		}
		fmt.Print("Password: ")
		password, ok := a.readLine(ctx)
		if !ok {
			return ctx.Err()
		}

		user, err := a.client.Login(ctx, strings.TrimSpace(username), strings.TrimSpace(password))
		if err != nil {
			if errors.Is(err, backend.ErrUnauthorized) {
				fmt.Println("Invalid credentials, try again.")
				continue
			}
			return fmt.Errorf("login: %w", err)
		}
		return a.sess.SignIn(ctx, user)
	}
}

func (a *app) send(ctx context.Context, text string) {
	before := a.sess.User()

	fmt.Print("Assistant: ")
	if err := a.store.SendMessage(ctx, text); err != nil {
		fmt.Println()
		switch {
		case errors.Is(err, chat.ErrSendInFlight):
			fmt.Println("Still waiting on the previous message.")
		case errors.Is(err, chat.ErrConversationEnded):
			fmt.Println("This conversation has ended. Start a new one with /new.")
		default:
			fmt.Println("Send failed:", err)
		}
		return
	}
	fmt.Println()

	snap := a.store.Snapshot()
	if n := len(snap.Messages); n > 0 {
		if points := snap.Messages[n-1].PointsEarned; points > 0 {
			fmt.Printf("+%d points", points)
			if after := a.sess.User(); before != nil && after != nil && after.Level > before.Level {
				fmt.Printf(" — level up! You are now level %d", after.Level)
			}
			fmt.Println()
		}
	}
}

func (a *app) newConversation(ctx context.Context) {
	conv, err := a.store.CreateConversation(ctx)
	if err != nil {
		fmt.Println("Could not start a conversation:", err)
		return
	}
	fmt.Printf("Started conversation %s.\n", conv.DisplayTitle())
}

func (a *app) listConversations() {
	snap := a.store.Snapshot()
	if len(snap.Conversations) == 0 {
		fmt.Println("No conversations yet. Start one with /new.")
		return
	}
	for i, conv := range snap.Conversations {
		marker := " "
		if snap.Active != nil && conv.ID == snap.Active.ID {
			marker = "*"
		}
		fmt.Printf("%s %2d. %-40s %-9s %d messages\n",
			marker, i+1, conv.DisplayTitle(), conv.Status, conv.MessageCount)
	}
}

// conversationByIndex resolves a 1-based /list index.
func (a *app) conversationByIndex(arg string) (*domain.Conversation, bool) {
	snap := a.store.Snapshot()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(snap.Conversations) {
		fmt.Println("Pick a conversation number from /list.")
		return nil, false
	}
	return snap.Conversations[n-1], true
}

func (a *app) selectConversation(ctx context.Context, arg string) {
	conv, ok := a.conversationByIndex(arg)
	if !ok {
		return
	}
	if err := a.store.SelectConversation(ctx, conv.ID); err != nil {
		fmt.Println("Could not open conversation:", err)
		return
	}
	snap := a.store.Snapshot()
	fmt.Printf("Switched to %s.\n", conv.DisplayTitle())
	a.printMessages(snap.Messages)
}

func (a *app) showHistory(ctx context.Context) {
	snap := a.store.Snapshot()
	if snap.Active == nil {
		fmt.Println("No active conversation.")
		return
	}
	if err := a.store.SelectConversation(ctx, snap.Active.ID); err != nil {
		fmt.Println("Could not reload history:", err)
		return
	}
	a.printMessages(a.store.Snapshot().Messages)
}

func (a *app) printMessages(messages []*domain.Message) {
	for _, m := range messages {
		if m.UserMessage != "" {
			fmt.Printf("You: %s\n", m.UserMessage)
		}
		if m.BotResponse != "" {
			fmt.Printf("Assistant: %s\n", m.BotResponse)
		}
	}
}

// confirm asks a yes/no question and returns true only on an explicit yes.
func (a *app) confirm(ctx context.Context, prompt string) bool {
	fmt.Printf("%s (y/N): ", prompt)
	line, ok := a.readLine(ctx)
	if !ok {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (a *app) endConversation(ctx context.Context) {
	snap := a.store.Snapshot()
	if snap.Active == nil {
		fmt.Println("No active conversation.")
		return
	}
	if !a.confirm(ctx, "Ending a conversation cannot be undone. End it?") {
		fmt.Println("Cancelled.")
		return
	}
	conv, err := a.store.EndConversation(ctx)
	if err != nil {
		fmt.Println("Could not end conversation:", err)
		return
	}
	fmt.Printf("Conversation %q ended. Take its quiz with /quiz.\n", conv.DisplayTitle())
}

func (a *app) deleteConversation(ctx context.Context, arg string) {
	conv, ok := a.conversationByIndex(arg)
	if !ok {
		return
	}
	if !a.confirm(ctx, fmt.Sprintf("Delete %q and its history?", conv.DisplayTitle())) {
		fmt.Println("Cancelled.")
		return
	}
	if err := a.store.DeleteConversation(ctx, conv.ID); err != nil {
		fmt.Println("Could not delete conversation:", err)
		return
	}
	fmt.Println("Deleted.")
}

func (a *app) takeQuiz(ctx context.Context) {
	snap := a.store.Snapshot()
	if snap.Active == nil {
		fmt.Println("No active conversation. Select one with /select.")
		return
	}

	quiz, err := a.store.QuizForConversation(ctx, snap.Active.ID)
	if err != nil {
		fmt.Println("No quiz available:", err)
		return
	}

	fmt.Println(quiz.Title)
	answers := make([]string, 0, len(quiz.Questions))
	for i, q := range quiz.Questions {
		fmt.Printf("\n%d. %s\n", i+1, q.Question)
		for j, opt := range q.Options {
			fmt.Printf("   %c) %s\n", 'a'+j, opt)
		}
		answers = append(answers, a.readAnswer(ctx, q.Options))
		if ctx.Err() != nil {
			return
		}
	}

	user := a.sess.User()
	result, err := a.client.SubmitQuiz(ctx, quiz.ID, user.ID, answers)
	if err != nil {
		fmt.Println("Could not submit quiz:", err)
		return
	}

	fmt.Printf("\nYou scored %d/%d", result.Score, result.TotalQuestions)
	if result.PointsEarned > 0 {
		fmt.Printf(" and earned %d points", result.PointsEarned)
		if err := a.sess.ApplyPoints(ctx, result.PointsEarned); err != nil {
			slog.Warn("failed to apply quiz points locally", "error", err)
		}
	}
	fmt.Println(".")
}

// readAnswer reads an option letter and maps it to the option text.
func (a *app) readAnswer(ctx context.Context, options []string) string {
	for {
		fmt.Print("Your answer: ")
		line, ok := a.readLine(ctx)
		if !ok {
			return ""
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if len(answer) == 1 {
			if idx := int(answer[0] - 'a'); idx >= 0 && idx < len(options) {
				return options[idx]
			}
		}
		fmt.Printf("Pick a letter between a and %c.\n", 'a'+len(options)-1)
	}
}

func (a *app) showStats(ctx context.Context) {
	user := a.sess.User()
	stats, err := a.client.UserStats(ctx, user.ID)
	if err != nil {
		fmt.Println("Could not load stats:", err)
		return
	}
	fmt.Printf("%s — level %d, %d points", user.FullName, stats.Level, stats.TotalPoints)
	if stats.Rank > 0 {
		fmt.Printf(", rank #%d", stats.Rank)
	}
	fmt.Printf("\nMessages sent: %d  Quizzes passed: %d\n", stats.MessagesSent, stats.QuizzesPassed)
}

func (a *app) showAchievements(ctx context.Context) {
	user := a.sess.User()
	achievements, err := a.client.Achievements(ctx, user.ID)
	if err != nil {
		fmt.Println("Could not load achievements:", err)
		return
	}
	for _, ach := range achievements {
		status := fmt.Sprintf("%d/%d", ach.Progress, ach.TargetValue)
		if ach.Completed {
			status = "done"
		}
		fmt.Printf("  %-20s %-8s %s (+%d pts)\n", ach.Name, status, ach.Description, ach.PointsReward)
	}
}

func (a *app) showLeaderboard(ctx context.Context) {
	entries, err := a.client.Leaderboard(ctx)
	if err != nil {
		fmt.Println("Could not load leaderboard:", err)
		return
	}
	user := a.sess.User()
	for i, e := range entries {
		marker := " "
		if user != nil && e.UserID == user.ID {
			marker = "*"
		}
		fmt.Printf("%s %2d. %-25s %5d pts  level %d\n", marker, i+1, e.FullName, e.TotalPoints, e.Level)
	}
}
