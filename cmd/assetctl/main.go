// Command assetctl runs provisioning operations against the configured
// storage without going through the HTTP API.
package main

func main() {
	Execute()
}
