package cli

import (
	"fmt"

	"quiz-battle-service/internal/domain"
)

// sampleQuestions is a small bank for running without Postgres or for `seed`.
func sampleQuestions() []domain.Question {
	type item struct {
		prompt  string
		options []string
		correct int
	}
	bank := map[string][]item{
		"go": {
			{"Which keyword starts a goroutine?", []string{"go", "async", "spawn"}, 0},
			{"What does a nil map read return?", []string{"panic", "the zero value", "an error"}, 1},
			{"Which package provides WaitGroup?", []string{"context", "runtime", "sync"}, 2},
			{"What is the zero value of a slice?", []string{"nil", "[]", "0"}, 0},
			{"Which statement defers a call until return?", []string{"later", "defer", "finally"}, 1},
			{"How many values does a map lookup with ok return?", []string{"1", "3", "2"}, 2},
		},
		"sql": {
			{"Which clause filters grouped rows?", []string{"HAVING", "WHERE", "FILTER"}, 0},
			{"Which join keeps unmatched left rows?", []string{"INNER", "LEFT", "CROSS"}, 1},
			{"Which statement removes a table?", []string{"DELETE", "TRUNCATE", "DROP"}, 2},
			{"What does COUNT(*) count?", []string{"rows", "non-null values", "columns"}, 0},
			{"Which isolation level prevents phantom reads?", []string{"READ COMMITTED", "SERIALIZABLE", "READ UNCOMMITTED"}, 1},
			{"Which keyword removes duplicate rows?", []string{"UNIQUE", "ONLY", "DISTINCT"}, 2},
		},
		"networking": {
			{"Which port does HTTPS use by default?", []string{"443", "80", "8443"}, 0},
			{"Which protocol resolves names to addresses?", []string{"ARP", "DNS", "DHCP"}, 1},
			{"Which layer does TCP belong to?", []string{"network", "link", "transport"}, 2},
			{"How many bits are in an IPv4 address?", []string{"32", "64", "128"}, 0},
			{"Which status code means Not Found?", []string{"500", "404", "301"}, 1},
			{"Which header upgrades HTTP to a websocket?", []string{"Accept", "Host", "Upgrade"}, 2},
		},
	}

	var out []domain.Question
	for _, topic := range []string{"go", "sql", "networking"} {
		for i, it := range bank[topic] {
			q := domain.Question{
				ID:         fmt.Sprintf("%s-%d", topic, i+1),
				Topic:      topic,
				Difficulty: "medium",
				Prompt:     it.prompt,
				Points:     1,
			}
			for j, text := range it.options {
				q.Options = append(q.Options, domain.Option{
					ID:      fmt.Sprintf("o%d", j+1),
					Text:    text,
					Correct: j == it.correct,
				})
			}
			out = append(out, q)
		}
	}
	return out
}

// sampleTopics marks demo users as having completed overlapping topics.
func sampleTopics() map[string][]string {
	return map[string][]string{
		"alice": {"go", "sql"},
		"bob":   {"go", "networking"},
		"carol": {"sql", "networking"},
	}
}
