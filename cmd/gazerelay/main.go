// gazerelay conditions eye-tracker samples and relays gaze frames to
// registered UDP clients and websocket subscribers.
package main

func main() {
	Execute()
}
