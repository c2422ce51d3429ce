package agent

import (
	"context"
	"fmt"
	"log"
	"time"
)

type Messenger interface {
	Send(chatID string, text string) error
}

type ScheduledGoalStore interface {
	GetDueGoals() ([]map[string]any, error)
	UpdateGoalLastRun(id int) error
	DeleteGoal(chatID string, goalID int) error
}

// Scheduler polls for recurring goals and runs each through the brain as
// if the user had just asked for it.
type Scheduler struct {
	Brain   Brain
	Store   ScheduledGoalStore
	Gateway Messenger
}

func NewScheduler(brain Brain, store ScheduledGoalStore, gateway Messenger) *Scheduler {
	return &Scheduler{
		Brain:   brain,
		Store:   store,
		Gateway: gateway,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	log.Println("Goal scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAndExecute(ctx)
		}
	}
}

func (s *Scheduler) pollAndExecute(ctx context.Context) {
	goals, err := s.Store.GetDueGoals()
	if err != nil {
		log.Printf("Error polling scheduled goals: %v", err)
		return
	}

	for _, g := range goals {
		id := g["id"].(int)
		chatID := g["chat_id"].(string)
		goal := g["goal"].(string)

		log.Printf("Executing scheduled goal %d for chat %s: %s", id, chatID, goal)

		response, err := s.Brain.Think(ctx, chatID, fmt.Sprintf("[SYSTEM: This is the execution of a previously scheduled goal: %q. Run it now. DO NOT schedule it again.]", goal))
		if err != nil {
			log.Printf("Error executing scheduled goal %d: %v", id, err)
			continue
		}

		if err := s.Store.UpdateGoalLastRun(id); err != nil {
			log.Printf("Error updating last run for goal %d: %v", id, err)
		}

		// One-time goals (interval 0) get removed after the first run.
		if g["interval_seconds"].(int) == 0 {
			if err := s.Store.DeleteGoal(chatID, id); err != nil {
				log.Printf("Error deleting one-time goal %d: %v", id, err)
			}
		}

		if s.Gateway != nil {
			s.Gateway.Send(chatID, "⏰ *Scheduled Goal Output*\n\n"+response)
		}
	}
}
