package stubserver

import (
	"strings"

	"github.com/skillstream/skillstream/internal/domain"
)

// seedUsers are the demo accounts the stub accepts at login.
func seedUsers() []*domain.User {
	return []*domain.User{
		{ID: "user-1", Username: "jdoe", FullName: "John Doe", Department: "Engineering", TotalPoints: 110, Level: 2},
		{ID: "user-2", Username: "asmith", FullName: "Alice Smith", Department: "Marketing", TotalPoints: 250, Level: 3},
		{ID: "user-3", Username: "mchen", FullName: "Maria Chen", Department: "Sales", TotalPoints: 40, Level: 1},
		{ID: "user-4", Username: "pkumar", FullName: "Priya Kumar", Department: "Support", TotalPoints: 530, Level: 6},
	}
}

// achievementDef is a platform-wide achievement definition. Progress is
// computed per user against Target.
type achievementDef struct {
	ID           string
	Name         string
	Description  string
	PointsReward int
	Target       int
	// progress selects which counter the achievement tracks.
	progress func(st *userProgress) int
}

type userProgress struct {
	MessagesSent           int
	ConversationsCompleted int
	QuizzesPassed          int
	Level                  int
}

func achievementDefs() []achievementDef {
	return []achievementDef{
		{
			ID: "ach-first-steps", Name: "First Steps",
			Description: "Send your first message", PointsReward: 10, Target: 1,
			progress: func(st *userProgress) int { return st.MessagesSent },
		},
		{
			ID: "ach-conversationalist", Name: "Conversationalist",
			Description: "Send 50 messages", PointsReward: 50, Target: 50,
			progress: func(st *userProgress) int { return st.MessagesSent },
		},
		{
			ID: "ach-dedicated-learner", Name: "Dedicated Learner",
			Description: "Complete 10 conversations", PointsReward: 100, Target: 10,
			progress: func(st *userProgress) int { return st.ConversationsCompleted },
		},
		{
			ID: "ach-quiz-whiz", Name: "Quiz Whiz",
			Description: "Pass 5 quizzes", PointsReward: 150, Target: 5,
			progress: func(st *userProgress) int { return st.QuizzesPassed },
		},
		{
			ID: "ach-rising-star", Name: "Rising Star",
			Description: "Reach level 5", PointsReward: 200, Target: 5,
			progress: func(st *userProgress) int { return st.Level },
		},
	}
}

// cannedReplies maps topic keywords to assistant responses. The stub picks
// the first matching entry, falling back to the default reply.
var cannedReplies = []struct {
	keywords []string
	reply    string
}{
	{
		keywords: []string{"onboard", "start", "welcome"},
		reply: "Welcome aboard! A good first week covers three things: meet your team, " +
			"set up your development environment, and read the team handbook. " +
			"Your manager will schedule a kickoff to walk through your first project.",
	},
	{
		keywords: []string{"security", "password", "phishing"},
		reply: "Security basics worth remembering: use a password manager, enable two-factor " +
			"authentication everywhere, and treat unexpected links in email as hostile. " +
			"Report anything suspicious to the security team rather than deleting it.",
	},
	{
		keywords: []string{"review", "feedback", "performance"},
		reply: "Performance reviews work best when you keep a running log of your wins. " +
			"Write down shipped projects, people you helped, and problems you prevented. " +
			"Concrete examples beat adjectives in every review conversation.",
	},
}

const defaultReply = "That's a great topic to dig into. The key is to break it down into " +
	"small steps, practice each one, and ask questions when you get stuck. " +
	"What part would you like to explore first?"

// replyFor picks a canned assistant response for a user message.
func replyFor(message string) string {
	lower := strings.ToLower(message)
	for _, c := range cannedReplies {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.reply
			}
		}
	}
	return defaultReply
}

// tokenize splits a reply into streamable chunks. Each token keeps its
// trailing space so clients can concatenate tokens without re-inserting
// whitespace.
func tokenize(reply string) []string {
	words := strings.Fields(reply)
	tokens := make([]string, 0, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			w += " "
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// topicFromMessage derives a short conversation topic from the first message.
func topicFromMessage(message string) string {
	words := strings.Fields(message)
	if len(words) == 0 {
		return "General Discussion"
	}
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}
