// Command rallocctl creates, inspects, verifies and recovers ralloc heap files.
package main

func main() {
	execute()
}
