// Package clock abstracts the time source used by the poll scheduler.
//
// Production code uses [Real]. Tests use [Fake], whose time only moves when
// [FakeClock.Advance] is called, so timeout and tick behaviour can be
// asserted without sleeping.
package clock
