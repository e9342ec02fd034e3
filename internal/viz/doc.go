// Package viz draws the controller in the terminal.
//
//   - [Model]: Bubble Tea view of a running loop, fed by [UpdateMsg] values
//   - [Canvas]: braille canvas for x-y paths
//
// # Key Bindings
//
//	Space - Freeze/unfreeze the display (the loop keeps running)
//	Q     - Quit
package viz
