// Command driftwatch runs the autonomous conversational agent described by
// spec.md: a reactive message loop plus a proactive crawl-and-digest loop
// sharing one memory stack.
package main

func main() {
	Execute()
}
