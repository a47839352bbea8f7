// Package returns converts cached price tables into aligned daily
// log-return matrices. Alignment is a strict inner join on trading
// dates: a date survives only when every instrument in the universe has
// an observation, and instruments are never interpolated or padded.
package returns
