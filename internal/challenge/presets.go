package challenge

import (
	"context"
	"fmt"

	"github.com/playperu/mergeclash/internal/mergeclash"
)

// Presets serves the built-in ticket bank. It never fails for a known topic.
type Presets struct{}

func (Presets) Generate(_ context.Context, topic mergeclash.Topic, count int) ([]mergeclash.Ticket, error) {
	var bank []mergeclash.Ticket
	switch topic {
	case mergeclash.TopicPHP:
		bank = phpBank
	case mergeclash.TopicFrontend:
		bank = frontendBank
	case mergeclash.TopicMix:
		bank = append(append([]mergeclash.Ticket(nil), phpBank...), frontendBank...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if count > 0 && count < len(bank) {
		bank = bank[:count]
	}
	return clone(bank), nil
}

func clone(tickets []mergeclash.Ticket) []mergeclash.Ticket {
	out := make([]mergeclash.Ticket, len(tickets))
	for i, t := range tickets {
		t.Options = append([]string(nil), t.Options...)
		t.CorrectAnswer = append(mergeclash.Answer(nil), t.CorrectAnswer...)
		out[i] = t
	}
	return out
}

var phpBank = []mergeclash.Ticket{
	{
		ID: "php-1", Type: mergeclash.TicketMultipleChoice, Difficulty: mergeclash.DifficultyEasy, Topic: mergeclash.TopicPHP,
		Title:         "Strict comparison",
		Description:   "What does this print?",
		CodeSnippet:   "<?php\nvar_dump(\"1\" === 1);",
		Options:       []string{"A) bool(true)", "B) bool(false)", "C) int(1)", "D) NULL"},
		CorrectAnswer: mergeclash.Answer{"B"},
		Explanation:   "=== compares types as well as values.",
	},
	{
		ID: "php-2", Type: mergeclash.TicketFillInBlank, Difficulty: mergeclash.DifficultyEasy, Topic: mergeclash.TopicPHP,
		Title:         "Array length",
		Description:   "Fill in the function that counts the elements.",
		CodeSnippet:   "<?php\n$items = [1, 2, 3];\necho ____($items); // 3",
		CorrectAnswer: mergeclash.Answer{"count"},
	},
	{
		ID: "php-3", Type: mergeclash.TicketMultipleChoice, Difficulty: mergeclash.DifficultyMedium, Topic: mergeclash.TopicPHP,
		Title:         "Null coalescing",
		Description:   "What is $name after this runs?",
		CodeSnippet:   "<?php\n$user = [];\n$name = $user['name'] ?? 'guest';",
		Options:       []string{"A) null", "B) ''", "C) 'guest'", "D) a warning"},
		CorrectAnswer: mergeclash.Answer{"C"},
	},
	{
		ID: "php-4", Type: mergeclash.TicketFillInBlank, Difficulty: mergeclash.DifficultyMedium, Topic: mergeclash.TopicPHP,
		Title:         "Readonly property",
		Description:   "Which modifier makes the property immutable after construction?",
		CodeSnippet:   "<?php\nclass Point {\n    public function __construct(public ____ int $x) {}\n}",
		CorrectAnswer: mergeclash.Answer{"readonly"},
	},
	{
		ID: "php-5", Type: mergeclash.TicketDragAndDrop, Difficulty: mergeclash.DifficultyMedium, Topic: mergeclash.TopicPHP,
		Title:         "Request lifecycle",
		Description:   "Order the steps of handling a request in a typical framework.",
		CodeSnippet:   "// routing, middleware, controller, response",
		Options:       []string{"controller", "routing", "response", "middleware"},
		CorrectAnswer: mergeclash.Answer{"routing", "middleware", "controller", "response"},
	},
	{
		ID: "php-6", Type: mergeclash.TicketMultipleChoice, Difficulty: mergeclash.DifficultyHard, Topic: mergeclash.TopicPHP,
		Title:         "Static vs self",
		Description:   "What does B::create() return an instance of?",
		CodeSnippet:   "<?php\nclass A { public static function create() { return new static(); } }\nclass B extends A {}\nB::create();",
		Options:       []string{"A) A", "B) B", "C) Closure", "D) fatal error"},
		CorrectAnswer: mergeclash.Answer{"B"},
		Explanation:   "new static uses late static binding.",
	},
	{
		ID: "php-7", Type: mergeclash.TicketFillInBlank, Difficulty: mergeclash.DifficultyHard, Topic: mergeclash.TopicPHP,
		Title:         "Match expression",
		Description:   "Which exception does an unhandled match value throw?",
		CodeSnippet:   "<?php\necho match (3) { 1 => 'a', 2 => 'b' };\n// Uncaught ____",
		CorrectAnswer: mergeclash.Answer{"UnhandledMatchError"},
	},
	{
		ID: "php-8", Type: mergeclash.TicketMultipleChoice, Difficulty: mergeclash.DifficultyHard, Topic: mergeclash.TopicPHP,
		Title:         "Generators",
		Description:   "What does this print?",
		CodeSnippet:   "<?php\nfunction gen() { $x = yield 1; echo $x; }\n$g = gen();\n$g->current();\n$g->send('hi');",
		Options:       []string{"A) 1", "B) hi", "C) nothing", "D) 1hi"},
		CorrectAnswer: mergeclash.Answer{"B"},
	},
}

var frontendBank = []mergeclash.Ticket{
	{
		ID: "fe-1", Type: mergeclash.TicketMultipleChoice, Difficulty: mergeclash.DifficultyEasy, Topic: mergeclash.TopicFrontend,
		Title:         "Loose equality",
		Description:   "What does this log?",
		CodeSnippet:   "console.log(0 == '');",
		Options:       []string{"A) true", "B) false", "C) undefined", "D) TypeError"},
		CorrectAnswer: mergeclash.Answer{"A"},
	},
	{
		ID: "fe-2", Type: mergeclash.TicketFillInBlank, Difficulty: mergeclash.DifficultyEasy, Topic: mergeclash.TopicFrontend,
		Title:         "Array method",
		Description:   "Fill in the method that keeps only even numbers.",
		CodeSnippet:   "const even = [1, 2, 3, 4].____(n => n % 2 === 0);",
		CorrectAnswer: mergeclash.Answer{"filter"},
	},
	{
		ID: "fe-3", Type: mergeclash.TicketMultipleChoice, Difficulty: mergeclash.DifficultyMedium, Topic: mergeclash.TopicFrontend,
		Title:         "Flex centering",
		Description:   "Which property centers children on the cross axis of a row flexbox?",
		CodeSnippet:   ".box {\n  display: flex;\n  /* ? */: center;\n}",
		Options:       []string{"A) justify-content", "B) align-items", "C) place-self", "D) text-align"},
		CorrectAnswer: mergeclash.Answer{"B"},
	},
	{
		ID: "fe-4", Type: mergeclash.TicketFillInBlank, Difficulty: mergeclash.DifficultyMedium, Topic: mergeclash.TopicFrontend,
		Title:         "Effect cleanup",
		Description:   "Which hook runs side effects after render?",
		CodeSnippet:   "____(() => {\n  const id = setInterval(tick, 1000);\n  return () => clearInterval(id);\n}, []);",
		CorrectAnswer: mergeclash.Answer{"useEffect"},
	},
	{
		ID: "fe-5", Type: mergeclash.TicketDragAndDrop, Difficulty: mergeclash.DifficultyMedium, Topic: mergeclash.TopicFrontend,
		Title:         "Event phases",
		Description:   "Order the phases of DOM event propagation.",
		CodeSnippet:   "element.addEventListener('click', handler, { capture: true });",
		Options:       []string{"bubbling", "capturing", "target"},
		CorrectAnswer: mergeclash.Answer{"capturing", "target", "bubbling"},
	},
	{
		ID: "fe-6", Type: mergeclash.TicketMultipleChoice, Difficulty: mergeclash.DifficultyHard, Topic: mergeclash.TopicFrontend,
		Title:         "Event loop",
		Description:   "In what order are the numbers logged?",
		CodeSnippet:   "setTimeout(() => console.log(1));\nPromise.resolve().then(() => console.log(2));\nconsole.log(3);",
		Options:       []string{"A) 1 2 3", "B) 3 1 2", "C) 3 2 1", "D) 2 3 1"},
		CorrectAnswer: mergeclash.Answer{"C"},
		Explanation:   "Microtasks run before the next macrotask.",
	},
	{
		ID: "fe-7", Type: mergeclash.TicketFillInBlank, Difficulty: mergeclash.DifficultyHard, Topic: mergeclash.TopicFrontend,
		Title:         "Closures in loops",
		Description:   "Which keyword makes each callback log 0, 1, 2?",
		CodeSnippet:   "for (____ i = 0; i < 3; i++) {\n  setTimeout(() => console.log(i));\n}",
		CorrectAnswer: mergeclash.Answer{"let"},
	},
	{
		ID: "fe-8", Type: mergeclash.TicketMultipleChoice, Difficulty: mergeclash.DifficultyHard, Topic: mergeclash.TopicFrontend,
		Title:         "Specificity",
		Description:   "Which selector wins?",
		CodeSnippet:   "#nav a { color: red; }\n.menu .link:hover { color: blue; }\na.link { color: green; }",
		Options:       []string{"A) #nav a", "B) .menu .link:hover", "C) a.link", "D) the last one"},
		CorrectAnswer: mergeclash.Answer{"A"},
	},
}
