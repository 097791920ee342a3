// Package valuation implements the Graham-style intrinsic value model and the
// trading signals derived from it.
//
//	V = EPS(year) x (8.5 + 2 x g) x z / y
//
// Where:
//   - g = compound annual growth rate of net income before the evaluation year, in percent
//   - y = current macro interest rate
//   - z = trailing ten-year average of the macro interest rate
//   - EPS = earnings per share recorded for the evaluation year
//
// Every function is pure. A nil *float64 means "not available": the model
// never signals on insufficient information.
package valuation
