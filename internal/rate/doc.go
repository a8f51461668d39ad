// Package rate provides fixed-window admission control.
//
// # Window semantics
//
// A key admits at most Max calls per Window. The first call after the window
// has elapsed resets the counter and starts a new window at that instant; there
// is no background reset. [Window] keeps state in process behind sharded
// mutexes, [RedisWindow] keeps it in Redis (INCR + EXPIRE on first hit) so
// several processes share one budget.
//
// Keys are opaque. Each limiter carries its own prefix and callers pick the key:
//
//	req:key:<api key hash> | req:ip:<client ip>   HTTP request admission
//	signin:<tenant>:<email>                       sign-in attempts
//	otp:[ml:|reset:]<tenant>:<identifier>         code, link and reset sends
//	verify:<tenant>:<identifier>                  OTP redemptions
//	verify:mfa:<tenant>:<user>                    TOTP confirm and disable
//
// # What this package must NOT do
//
//   - Implement domain policy (which keys, which limits). The engine decides.
//   - Be imported outside the merco module.
package rate
