// salecap is a command-line capture tool for Saleae Logic / Cypress FX2
// logic analyzers.
package main

import "github.com/izzy84075/sigrok/cmd/salecap/cmd"

func main() {
	cmd.Execute()
}
