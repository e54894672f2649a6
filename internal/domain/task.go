// Package domain holds the batch classification types shared by the
// dispatch engine, the classifier backends and the outer surfaces (CLI, API).
// A Task is one item of a batch paired with its input position:
// submit → dispatch (inline | pool) → classify → respond → order-restore.
package domain

import (
	"fmt"
	"strings"
)

// Item is an opaque reference to content awaiting classification,
// usually an image URL.
type Item string

// Task pairs an Item with its zero-based position in the submitted batch.
// Index is assigned once at submission and never reassigned.
type Task struct {
	Index int  `json:"index"`
	Item  Item `json:"image"`
}

func (t Task) String() string {
	return fmt.Sprintf("(%d, %s)", t.Index, t.Item)
}

// RankedResult is one label with the score the model gave it.
type RankedResult struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

func (r RankedResult) String() string {
	return fmt.Sprintf("(%s, %v)", r.Label, r.Score)
}

// Response is the terminal outcome for one Task. Results is nil when the
// task failed or was never attempted because its unit could not load the
// model; callers cannot tell those apart from the value alone.
type Response struct {
	Index   int            `json:"index"`
	Item    Item           `json:"image"`
	Results []RankedResult `json:"results"`
}

// NewResponse builds a successful response for t.
func NewResponse(t Task, results []RankedResult) Response {
	if results == nil {
		results = []RankedResult{}
	}
	return Response{Index: t.Index, Item: t.Item, Results: results}
}

// FailedResponse builds a response for t with absent results.
func FailedResponse(t Task) Response {
	return Response{Index: t.Index, Item: t.Item}
}

// OK reports whether classification results are present.
func (r Response) OK() bool { return r.Results != nil }

// String renders the response the way the CLI prints it:
//
//	<image>
//	    (<label>, <score>)
func (r Response) String() string {
	var b strings.Builder
	b.WriteString(string(r.Item))
	if !r.OK() {
		b.WriteString("\n    None")
		return b.String()
	}
	for _, res := range r.Results {
		b.WriteString("\n    ")
		b.WriteString(res.String())
	}
	return b.String()
}

// NewTasks assigns indices 0..N-1 to items in input order.
func NewTasks(items []Item) []Task {
	tasks := make([]Task, len(items))
	for i, item := range items {
		tasks[i] = Task{Index: i, Item: item}
	}
	return tasks
}

// ItemsFromStrings trims each line and drops blanks.
func ItemsFromStrings(lines []string) []Item {
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		items = append(items, Item(l))
	}
	return items
}
