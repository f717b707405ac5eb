// Package tx holds the transaction records exchanged with remote data
// providers during API-assisted sync. Script execution and signature
// checks are not performed here.
package tx
