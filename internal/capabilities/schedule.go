package capabilities

import (
	"context"
	"fmt"

	"github.com/nsharma/weft/internal/engine"
)

type GoalStore interface {
	AddGoal(chatID string, goal string, intervalSeconds int) error
	ClearGoals(chatID string) error
}

type GoalScheduler struct {
	Store GoalStore
}

func NewGoalScheduler(store GoalStore) *GoalScheduler {
	return &GoalScheduler{Store: store}
}

func (g *GoalScheduler) Capability() *engine.Capability {
	return &engine.Capability{
		Name:        "schedule_goal",
		Description: "Manage recurring goals: 'schedule' a new goal or 'clear' all current ones.",
		Required:    []string{"action"},
		OutputKeys:  map[string]string{"status": "schedule_status"},
		Invoke:      g.invoke,
	}
}

func (g *GoalScheduler) invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	action, _ := args["action"].(string)
	chatID, ok := ctx.Value("chatID").(string)
	if !ok {
		return nil, &engine.CapabilityError{Message: "missing chatID in context"}
	}

	switch action {
	case "clear":
		if err := g.Store.ClearGoals(chatID); err != nil {
			return nil, &engine.CapabilityError{Message: fmt.Sprintf("failed to clear goals: %v", err)}
		}
		return map[string]any{"status": "cleared all scheduled goals"}, nil

	case "schedule":
		goal, _ := args["goal"].(string)
		interval := intArg(args["interval_seconds"])
		if interval < 60 {
			return nil, &engine.CapabilityError{Message: "minimum interval is 60 seconds"}
		}
		if err := g.Store.AddGoal(chatID, goal, interval); err != nil {
			return nil, &engine.CapabilityError{Message: fmt.Sprintf("failed to schedule goal: %v", err)}
		}
		return map[string]any{
			"status": fmt.Sprintf("scheduled goal %q every %d seconds", goal, interval),
		}, nil

	default:
		return nil, &engine.CapabilityError{Message: "action must be 'schedule' or 'clear'"}
	}
}

// intArg handles the integer shapes JSON decoding and plan resolution can
// produce for a numeric argument.
func intArg(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
