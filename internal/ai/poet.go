package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

var (
	difficultyGuides = map[string]string{
		DifficultyEasy:   "쉽고 직관적인 표현을 사용하며",
		DifficultyMedium: "적당한 수준의 창의성과 표현력으로",
		DifficultyHard:   "고급스럽고 창의적인 문학적 표현을 사용하여",
	}
	styleGuides = map[string]string{
		"funny":    "유머러스하고 재미있게",
		"serious":  "진지하고 깊이 있게",
		"cute":     "귀엽고 따뜻하게",
		"creative": "창의적이고 독특하게",
	}
)

type PoemRequest struct {
	Theme      string `json:"theme"`
	Difficulty string `json:"difficulty"`
	Style      string `json:"style"`
}

func (r PoemRequest) normalized() PoemRequest {
	r.Theme = strings.TrimSpace(r.Theme)
	if _, ok := difficultyGuides[r.Difficulty]; !ok {
		r.Difficulty = DifficultyMedium
	}
	if _, ok := styleGuides[r.Style]; !ok {
		r.Style = "creative"
	}
	return r
}

// Poem is a generated three-line poem.
type Poem struct {
	Line1     string `json:"line1"`
	Line2     string `json:"line2"`
	Line3     string `json:"line3"`
	Theme     string `json:"theme"`
	Reasoning string `json:"reasoning,omitempty"`
	Fallback  bool   `json:"fallback"`
}

func (p Poem) Lines() [3]string { return [3]string{p.Line1, p.Line2, p.Line3} }

// Poet writes poems through a Provider and falls back to local templates
// whenever the provider is missing or fails.
type Poet struct {
	provider Provider
	model    string
}

func NewPoet(p Provider, model string) *Poet {
	return &Poet{provider: p, model: model}
}

// Generate never fails; errors are logged and answered with a template poem.
func (pt *Poet) Generate(ctx context.Context, req PoemRequest) Poem {
	req = req.normalized()
	if pt == nil || pt.provider == nil {
		return FallbackPoem(req.Theme)
	}
	text, err := pt.provider.CompleteWithSystem(ctx, pt.model, SystemPrompt, BuildPrompt(req))
	if err != nil {
		log.Warn().Err(err).Str("theme", req.Theme).Str("model", pt.model).Msg("ai poem failed; using template")
		return FallbackPoem(req.Theme)
	}
	p := ParseResponse(text, req.Theme)
	log.Debug().Str("theme", req.Theme).Str("difficulty", req.Difficulty).Bool("fallback", p.Fallback).Msg("ai poem generated")
	return p
}

// BuildPrompt asks for one line per theme syllable in a fixed answer format.
func BuildPrompt(req PoemRequest) string {
	req = req.normalized()
	c1, c2, c3 := syllables(req.Theme)
	var sb strings.Builder
	fmt.Fprintf(&sb, "한국어 3행시를 작성해주세요.\n\n")
	fmt.Fprintf(&sb, "주제: %q\n", req.Theme)
	fmt.Fprintf(&sb, "난이도: %s (%s)\n", req.Difficulty, difficultyGuides[req.Difficulty])
	fmt.Fprintf(&sb, "스타일: %s (%s)\n\n", req.Style, styleGuides[req.Style])
	sb.WriteString("조건:\n")
	fmt.Fprintf(&sb, "1. %q의 각 글자로 시작하는 3줄의 시를 작성\n", req.Theme)
	sb.WriteString("2. 각 줄은 15-25글자 내외로 자연스럽게\n")
	sb.WriteString("3. 전체적으로 하나의 완성된 이야기나 감정을 표현\n")
	sb.WriteString("4. 한국어 문법과 어법을 정확히 지켜서\n")
	fmt.Fprintf(&sb, "5. %s 표현할 것\n\n", styleGuides[req.Style])
	sb.WriteString("응답 형식:\n")
	fmt.Fprintf(&sb, "첫째줄: [%s로 시작하는 문장]\n", c1)
	fmt.Fprintf(&sb, "둘째줄: [%s로 시작하는 문장]\n", c2)
	fmt.Fprintf(&sb, "셋째줄: [%s로 시작하는 문장]\n\n", c3)
	sb.WriteString("추가 설명은 하지 말고, 오직 3행의 시만 작성해주세요.")
	return sb.String()
}

var linePrefix = regexp.MustCompile(`^.*째줄:\s*`)

// ParseResponse extracts three lines from a provider answer. Missing lines are
// filled from the acrostic template.
func ParseResponse(text, theme string) Poem {
	var raw []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			raw = append(raw, l)
		}
	}

	var labelled []string
	for _, l := range raw {
		if strings.Contains(l, ":") && !strings.Contains(l, "째줄:") {
			continue
		}
		if l = strings.TrimSpace(linePrefix.ReplaceAllString(l, "")); l != "" {
			labelled = append(labelled, l)
		}
	}
	if len(labelled) >= 3 {
		return Poem{
			Line1: labelled[0], Line2: labelled[1], Line3: labelled[2],
			Theme:     theme,
			Reasoning: fmt.Sprintf("AI가 %q 주제로 창작한 작품", theme),
		}
	}

	var long []string
	for _, l := range raw {
		if utf8.RuneCountInString(l) > 5 {
			long = append(long, l)
		}
	}
	tmpl := acrostic(theme)
	p := Poem{Theme: theme, Reasoning: "AI 응답 파싱 후 생성된 작품"}
	lines := [3]*string{&p.Line1, &p.Line2, &p.Line3}
	for i, dst := range lines {
		if i < len(long) {
			*dst = long[i]
		} else {
			*dst = tmpl[i]
			p.Fallback = true
		}
	}
	return p
}

var templates = map[string][3]string{
	"사랑해": {"사람은 혼자서는 살 수 없어", "랑하는 마음이 있어야만", "해피엔딩을 만들 수 있지"},
	"고마워": {"고개 숙여 인사드려요", "마음 깊이 새겨놓은", "워밍한 당신의 사랑을"},
	"벚꽃비": {"벚꽃이 흩날리는 봄날", "꽃잎처럼 떨어지는 추억", "비 오듯 내리는 그리움"},
	"별하늘": {"별빛이 쏟아지는 밤", "하얀 달빛 아래서", "늘 꿈꾸던 이야기를"},
	"친구야": {"친한 사이라서 좋은", "구름처럼 자유로운", "야생화 같은 우정이"},
	"엄마야": {"엄청나게 소중한 분", "마음속 깊이 자리한", "야속하지만 고마운 사랑"},
	"행복해": {"행여나 잊을까 봐", "복된 이 순간을", "해맑은 웃음으로 간직해"},
	"꿈나무": {"꿈을 키우는 어린이", "나무처럼 자라나서", "무럭무럭 자라날 거야"},
	"바다야": {"바람이 불어오는 곳", "다정한 파도 소리와", "야속한 갈매기 울음"},
	"하늘아": {"하얗게 펼쳐진 구름", "늘 푸른 너의 모습", "아름다운 꿈을 그려줘"},
}

// FallbackPoem returns a canned poem for well-known themes and a generic
// acrostic for everything else.
func FallbackPoem(theme string) Poem {
	theme = strings.TrimSpace(theme)
	if t, ok := templates[theme]; ok {
		return Poem{Line1: t[0], Line2: t[1], Line3: t[2], Theme: theme, Reasoning: "AI 시스템이 생성한 기본 템플릿", Fallback: true}
	}
	t := acrostic(theme)
	return Poem{Line1: t[0], Line2: t[1], Line3: t[2], Theme: theme, Reasoning: "AI 시스템이 생성한 동적 템플릿", Fallback: true}
}

func acrostic(theme string) [3]string {
	c1, c2, c3 := syllables(theme)
	return [3]string{
		c1 + "로 시작하는 이야기",
		c2 + "처럼 아름다운",
		c3 + "과 함께하는 시간",
	}
}

// syllables returns the first three characters of theme, repeating the first
// one when the theme is shorter.
func syllables(theme string) (string, string, string) {
	r := []rune(strings.TrimSpace(theme))
	if len(r) == 0 {
		r = []rune("시")
	}
	at := func(i int) string {
		if i < len(r) {
			return string(r[i])
		}
		return string(r[0])
	}
	return at(0), at(1), at(2)
}

// Personality is how the AI opponent presents itself at a difficulty.
type Personality struct {
	Nickname    string `json:"nickname"`
	Description string `json:"description"`
	WinMessage  string `json:"winMessage"`
	LoseMessage string `json:"loseMessage"`
}

var personalities = map[string]Personality{
	DifficultyEasy:   {Nickname: "AI 새싹이", Description: "귀엽고 친근한 AI", WinMessage: "와! 정말 재미있었어요!", LoseMessage: "다음엔 더 열심히 할게요!"},
	DifficultyMedium: {Nickname: "AI 시인", Description: "균형잡힌 창작 AI", WinMessage: "좋은 대결이었습니다!", LoseMessage: "당신의 작품이 더 훌륭하네요!"},
	DifficultyHard:   {Nickname: "AI 대가", Description: "고수준 문학 AI", WinMessage: "치열한 대결이었군요.", LoseMessage: "당신의 문학적 감성에 감복합니다."},
}

// PersonalityFor returns the medium personality for unknown difficulties.
func PersonalityFor(difficulty string) Personality {
	if p, ok := personalities[difficulty]; ok {
		return p
	}
	return personalities[DifficultyMedium]
}
