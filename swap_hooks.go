package relayer

import (
	"context"
	"time"
)

// ============================================================================
// Swap Hook Context Types
// ============================================================================

// SwapContext contains information passed to swap hooks
type SwapContext struct {
	Ctx       context.Context
	ID        string
	Owner     string
	Request   SwapRequest
	Timestamp time.Time
}

// SwapResultContext contains a confirmed swap and its context
type SwapResultContext struct {
	SwapContext
	Result   SwapResult
	Duration time.Duration
}

// SwapFailureContext contains a failed swap and its context
type SwapFailureContext struct {
	SwapContext
	Error    *SwapError
	State    State
	Duration time.Duration
}

// ============================================================================
// Swap Hook Result Types
// ============================================================================

// BeforeSwapHookResult represents the result of a "before" hook
// If Abort is true, the swap will be aborted with the given Reason
type BeforeSwapHookResult struct {
	Abort  bool
	Reason string
}

// ============================================================================
// Swap Hook Function Types
// ============================================================================

// BeforeSwapHook is called before any chain interaction. Returning Abort=true
// or an error stops the attempt with an AbortedError.
type BeforeSwapHook func(SwapContext) (*BeforeSwapHookResult, error)

// AfterSwapHook is called after a swap is confirmed
// Any error returned will be logged but will not affect the result
type AfterSwapHook func(SwapResultContext) error

// OnSwapFailureHook is called when a swap attempt fails in any phase
// Any error returned will be logged
type OnSwapFailureHook func(SwapFailureContext) error

// ============================================================================
// Hook Registration Methods
// ============================================================================

// OnBeforeSwap registers a hook run before each attempt
func (o *Orchestrator) OnBeforeSwap(hook BeforeSwapHook) *Orchestrator {
	if hook != nil {
		o.beforeSwapHooks = append(o.beforeSwapHooks, hook)
	}
	return o
}

// OnAfterSwap registers a hook run after each confirmed swap
func (o *Orchestrator) OnAfterSwap(hook AfterSwapHook) *Orchestrator {
	if hook != nil {
		o.afterSwapHooks = append(o.afterSwapHooks, hook)
	}
	return o
}

// OnSwapFailure registers a hook run after each failed attempt
func (o *Orchestrator) OnSwapFailure(hook OnSwapFailureHook) *Orchestrator {
	if hook != nil {
		o.onSwapFailureHooks = append(o.onSwapFailureHooks, hook)
	}
	return o
}

func (o *Orchestrator) runBeforeHooks(hookCtx SwapContext) error {
	for _, hook := range o.beforeSwapHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return &AbortedError{Reason: err.Error()}
		}
		if result != nil && result.Abort {
			return &AbortedError{Reason: result.Reason}
		}
	}
	return nil
}

func (o *Orchestrator) runAfterHooks(resultCtx SwapResultContext) {
	for _, hook := range o.afterSwapHooks {
		if err := hook(resultCtx); err != nil {
			o.logger.Warn("after-swap hook failed", "swap_id", resultCtx.ID, "error", err)
		}
	}
}

func (o *Orchestrator) runFailureHooks(failureCtx SwapFailureContext) {
	for _, hook := range o.onSwapFailureHooks {
		if err := hook(failureCtx); err != nil {
			o.logger.Warn("swap-failure hook failed", "swap_id", failureCtx.ID, "error", err)
		}
	}
}
