// Package clock indirects time acquisition so tests can pin the current
// instant without sleeping.
package clock

import "time"

// NowFunc supplies the current time; tests may swap it out.
var NowFunc = time.Now

// Now returns the current time via NowFunc.
func Now() time.Time { return NowFunc() }
