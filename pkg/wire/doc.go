// Package wire implements the text framing used by the vision sensor.
//
// Every request is a command token optionally followed by arguments and
// terminated by a fixed delimiter. Every response starts with a status token
// followed by the payload fields and the same delimiter:
//
//	T2<CR>            -> OK,2<CR>
//	PR<CR>            -> OK,10.0,20.0,0.0,0.0,0.0,90.0<CR>
//	XX<CR>            -> ER,XX,02<CR>
//
// The concrete token set is vendor specific, so tokens, separator, delimiter
// and the frame size bound all come from a Vocabulary table rather than
// constants. The package performs no I/O; a Codec is safe for concurrent use.
package wire
