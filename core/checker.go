package core

import "context"

// Checker is the fluent form of Verifier. Constraints set on a Checker are
// consumed by the next Verify or VerifyOrFail call and then cleared.
//
// A Checker is not safe for concurrent use. Use one per goroutine, or call
// Verifier.Verify with explicit constraints.
type Checker struct {
	verifier    *Verifier
	constraints Constraints
}

func (c *Checker) Hostname(hostname string) *Checker {
	c.constraints = c.constraints.WithHostname(hostname)
	return c
}

func (c *Checker) APKPackageName(name string) *Checker {
	c.constraints = c.constraints.WithAPKPackageName(name)
	return c
}

func (c *Checker) Action(action string) *Checker {
	c.constraints = c.constraints.WithAction(action)
	return c
}

// SaneAction sets the action with every character outside [A-Za-z0-9-]
// removed.
func (c *Checker) SaneAction(action string) *Checker {
	c.constraints = c.constraints.WithSaneAction(action)
	return c
}

func (c *Checker) Threshold(threshold float64) *Checker {
	c.constraints = c.constraints.WithThreshold(threshold)
	return c
}

// ChallengeTs sets the maximum challenge age in seconds.
func (c *Checker) ChallengeTs(seconds int) *Checker {
	c.constraints = c.constraints.WithChallengeTimeout(seconds)
	return c
}

func (c *Checker) FlushConstraints() *Checker {
	c.constraints = NewConstraints()
	return c
}

func (c *Checker) Constraints() Constraints {
	if c == nil {
		return NewConstraints()
	}
	return c.constraints
}

func (c *Checker) Verify(ctx context.Context, token string, remoteIP string) Result {
	constraints := c.take()
	return c.verifier.Verify(ctx, token, remoteIP, constraints)
}

func (c *Checker) VerifyOrFail(ctx context.Context, token string, remoteIP string) (Result, error) {
	constraints := c.take()
	return c.verifier.VerifyOrFail(ctx, token, remoteIP, constraints)
}

func (c *Checker) take() Constraints {
	if c == nil {
		return NewConstraints()
	}
	constraints := c.constraints
	c.constraints = NewConstraints()
	return constraints
}
