package apperror

import "errors"

// Kind is the machine-readable class of a failure.
type Kind string

const (
	KindDomain      Kind = "domain"
	KindNotFound    Kind = "not_found"
	KindCapacity    Kind = "capacity"
	KindBusy        Kind = "busy"
	KindPersistence Kind = "persistence"
	KindConflict    Kind = "conflict"
	KindInvalid     Kind = "invalid"
	KindInternal    Kind = "internal"
)

// Error is a sentinel error carrying its class and a stable reason code.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
}

func (that *Error) Error() string {
	return that.Message
}

func newError(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

var (
	ErrNotYourTurn          = newError(KindDomain, "not_your_turn", "it's not your turn")
	ErrMiniBoardNotPlayable = newError(KindDomain, "mini_board_not_playable", "selected mini board is not playable")
	ErrInvalidMove          = newError(KindDomain, "invalid_move", "invalid move")
	ErrGameNotInProgress    = newError(KindDomain, "game_not_in_progress", "game is not in progress")

	ErrGameNotFound   = newError(KindNotFound, "game_not_found", "game not found")
	ErrRoomNotFound   = newError(KindNotFound, "room_not_found", "room not found or not joinable")
	ErrTicketNotFound = newError(KindNotFound, "ticket_not_found", "ticket not found or not cancellable")

	ErrCapacityExceeded = newError(KindCapacity, "capacity_exceeded", "too many parallel games, please retry later")
	ErrNearCapacity     = newError(KindCapacity, "near_capacity", "server is near capacity, please retry later")
	ErrRoomsCapReached  = newError(KindCapacity, "rooms_cap_reached", "no rooms available, please retry later")

	ErrServerBusy = newError(KindBusy, "server_busy", "server is busy, please retry")

	ErrPersistence = newError(KindPersistence, "persistence_failed", "failed to persist game state")

	ErrGameAlreadyExists = newError(KindConflict, "game_already_exists", "game already exists")
	ErrRoomNotFull       = newError(KindConflict, "room_not_full", "room is not full yet")
	ErrSelfJoin          = newError(KindConflict, "self_join", "cannot join your own room")

	ErrJoinCodeRequired = newError(KindInvalid, "join_code_required", "join code is required")

	ErrInternal = newError(KindInternal, "internal", "internal error")
)

// KindOf returns the class of err, KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	return KindInternal
}

// ReasonOf returns the reason code of err, "internal" for errors outside the taxonomy.
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}

	return ErrInternal.Reason
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindCapacity, KindBusy, KindPersistence:
		return true
	default:
		return false
	}
}
