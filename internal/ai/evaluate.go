package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Score rates a poem from 0 to 100: 30 per written line, 3 per theme
// character that appears anywhere in it, and a length bonus.
func Score(lines [3]string, theme string) int {
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			return 0
		}
	}
	score := 90
	content := strings.Join(lines[:], " ")
	for _, r := range theme {
		if strings.ContainsRune(content, r) {
			score += 3
		}
	}
	total := 0
	for _, l := range lines {
		total += utf8.RuneCountInString(l)
	}
	if total > 30 {
		score += 5
	}
	if total > 50 {
		score += 5
	}
	return min(score, 100)
}

// Evaluation compares a human poem with the AI's.
type Evaluation struct {
	HumanScore int    `json:"humanScore"`
	AIScore    int    `json:"aiScore"`
	Feedback   string `json:"feedback"`
	Winner     string `json:"winner"` // "human" or "ai"
	Message    string `json:"message"`
}

// Evaluate scores both poems. The AI wins ties. Feedback is picked from the
// human poem so the same input always reads the same.
func Evaluate(human, aiPoem [3]string, theme string) Evaluation {
	e := Evaluation{HumanScore: Score(human, theme), AIScore: Score(aiPoem, theme)}
	feedbacks := []string{
		fmt.Sprintf("%q 주제를 잘 살린 멋진 작품이네요!", theme),
		"창의적인 표현이 돋보이는 시입니다.",
		"감정이 잘 드러나는 따뜻한 작품이에요.",
		"리듬감이 좋고 읽기 편한 시네요.",
		"독창적인 발상이 인상깊습니다.",
	}
	n := 0
	for _, l := range human {
		n += utf8.RuneCountInString(l)
	}
	e.Feedback = feedbacks[n%len(feedbacks)]
	if e.HumanScore > e.AIScore {
		e.Winner, e.Message = "human", "축하합니다! 승리하셨네요!"
	} else {
		e.Winner, e.Message = "ai", "아쉽게도 AI가 이겼네요. 다시 도전해보세요!"
	}
	return e
}
