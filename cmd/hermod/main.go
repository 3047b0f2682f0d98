// Command hermod runs the messaging gateway daemon. Protocol drivers
// register themselves with the transport package; a deployment links the
// drivers it needs and selects one with HERMOD_TRANSPORT.
package main

import "github.com/hermod-chat/hermod/internal/cli"

func main() {
	cli.Execute()
}
