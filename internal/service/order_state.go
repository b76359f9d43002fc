package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/enobongmedem-code/darnumber-sub000/internal/domain"
	"github.com/enobongmedem-code/darnumber-sub000/internal/repository"
)

// orderTransitions is the order state machine. The happy path runs
// PENDING -> PROCESSING -> WAITING_FOR_SMS -> COMPLETED; every non-terminal
// state can side-exit to CANCELLED, FAILED or EXPIRED. Terminal states have
// no outgoing edges.
var orderTransitions = map[string]map[string]struct{}{
	domain.OrderStatusPending: {
		domain.OrderStatusProcessing: {},
		domain.OrderStatusCancelled:  {},
		domain.OrderStatusFailed:     {},
		domain.OrderStatusExpired:    {},
		domain.OrderStatusRefunded:   {},
	},
	domain.OrderStatusProcessing: {
		domain.OrderStatusWaitingForSMS: {},
		domain.OrderStatusCancelled:     {},
		domain.OrderStatusFailed:        {},
		domain.OrderStatusExpired:       {},
		domain.OrderStatusRefunded:      {},
	},
	domain.OrderStatusWaitingForSMS: {
		domain.OrderStatusCompleted: {},
		domain.OrderStatusCancelled: {},
		domain.OrderStatusFailed:    {},
		domain.OrderStatusExpired:   {},
		domain.OrderStatusRefunded:  {},
	},
	domain.OrderStatusCompleted: {},
	domain.OrderStatusCancelled: {},
	domain.OrderStatusFailed:    {},
	domain.OrderStatusExpired:   {},
	domain.OrderStatusRefunded:  {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransitionOrder(current, next string) bool {
	current = normalizeState(current)
	next = normalizeState(next)
	nextStates, ok := orderTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// transitionOrderState moves an already-locked order to nextState and writes
// the audit record in the same transaction. The caller must hold the row lock
// via GetOrderForUpdate.
func transitionOrderState(ctx context.Context, qtx *repository.Queries, audit *AuditService, orderID uuid.UUID, current, next string, actorID *uuid.UUID, action string, metadata []byte) error {
	if normalizeState(current) == normalizeState(next) {
		return nil
	}
	if !canTransitionOrder(current, next) {
		return fmt.Errorf("invalid order state transition: %s -> %s", current, next)
	}

	rows, err := qtx.UpdateOrderStatus(ctx, orderID, next)
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}
	if err := requireExactlyOne(rows, "update order state"); err != nil {
		return err
	}

	return audit.Write(ctx, qtx, "order", orderID, actorID, action, current, next, metadata)
}
