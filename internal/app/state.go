package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"quiz-runner/internal/domain"
)

// isoMillis matches the browser's Date.toISOString output.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// StateKeys names the three persisted entries of one quiz.
type StateKeys struct {
	Answers string
	Index   string
	EndTime string
}

func KeysFor(quizID int64) StateKeys {
	prefix := "quiz_" + strconv.FormatInt(quizID, 10)
	return StateKeys{
		Answers: prefix + "_answers",
		Index:   prefix + "_index",
		EndTime: prefix + "_endtime",
	}
}

func (k StateKeys) All() []string {
	return []string{k.Answers, k.Index, k.EndTime}
}

// FormatEndTime renders t in UTC with millisecond precision.
func FormatEndTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// persistedState is what a reload finds in the store. Zero values mean "absent".
type persistedState struct {
	answers domain.Answers
	index   int
	endTime time.Time
}

// loadState reads the three keys. Store failures are returned; malformed values
// are logged and treated as absent.
func loadState(ctx context.Context, store StateStore, keys StateKeys, log zerolog.Logger) (persistedState, error) {
	var st persistedState

	raw, ok, err := store.Get(ctx, keys.EndTime)
	if err != nil {
		return st, fmt.Errorf("read %s: %w", keys.EndTime, err)
	}
	if ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			st.endTime = t
		} else {
			log.Warn().Str("key", keys.EndTime).Str("value", raw).Msg("ignoring malformed end time")
		}
	}

	raw, ok, err = store.Get(ctx, keys.Index)
	if err != nil {
		return st, fmt.Errorf("read %s: %w", keys.Index, err)
	}
	if ok {
		if n, err := strconv.Atoi(raw); err == nil {
			st.index = n
		} else {
			log.Warn().Str("key", keys.Index).Str("value", raw).Msg("ignoring malformed question index")
		}
	}

	raw, ok, err = store.Get(ctx, keys.Answers)
	if err != nil {
		return st, fmt.Errorf("read %s: %w", keys.Answers, err)
	}
	if ok {
		answers := domain.Answers{}
		if err := json.Unmarshal([]byte(raw), &answers); err == nil {
			st.answers = answers
		} else {
			log.Warn().Str("key", keys.Answers).Msg("ignoring malformed answers")
		}
	}
	return st, nil
}

// seedAnswers starts every question unanswered and overlays valid persisted picks.
func seedAnswers(questions []domain.Question, persisted domain.Answers) domain.Answers {
	answers := make(domain.Answers, len(questions))
	for _, q := range questions {
		answers[q.ID] = nil
	}
	for id, opt := range persisted {
		if _, known := answers[id]; !known || opt == nil || !domain.ValidOption(*opt) {
			continue
		}
		v := *opt
		answers[id] = &v
	}
	return answers
}

func encodeAnswers(answers domain.Answers) (string, error) {
	raw, err := json.Marshal(answers)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
