// Package similarity implements the content-similarity analysis used by the
// plagiarism job. It compares one subject text against a set of candidate
// texts with two independent metrics, a character n-gram TF-IDF cosine and a
// Ratcliff/Obershelp sequence ratio, and reports the stronger of the two per
// candidate together with the long contiguous spans the texts share.
//
// The package is pure: an Engine holds only immutable options, performs no
// I/O, and may be shared freely between goroutines.
package similarity
