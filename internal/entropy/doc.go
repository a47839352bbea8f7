// Package entropy computes the rolling entanglement entropy of a
// market's correlation structure. For every stamped date the engine
// takes the trailing window of log returns, forms the Pearson
// correlation matrix C of the universe, and evaluates
//
//	S = -log(det(C)) / N
//
// through a sign-tracking log-determinant, never a raw determinant.
// Windows whose determinant sign is not strictly positive yield an
// invalid point, a gap the rest of the pipeline must respect.
package entropy
