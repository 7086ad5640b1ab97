package main

import "github.com/frahmantamala/resorption-bidonvilles/cmd"

func main() {
	cmd.Execute()
}
