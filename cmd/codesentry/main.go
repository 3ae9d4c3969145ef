// codesentry — code protection and runtime monitoring.
package main

import "github.com/nkarpov/codesentry/internal/cli"

func main() {
	cli.Execute()
}
