// Package network provides a ZeroMQ request/reply transport for the
// zipper. It mirrors the framed TCP surface: each request is an Arrow
// IPC stream and each reply is either the zipped stream or an
// "ERR: ..." payload.
package network
