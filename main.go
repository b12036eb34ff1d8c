// Binary bootfirm checks and updates the bootloader images kept in the
// raw boot area of AM335x MMC/SD devices.
package main

import "github.com/deploymenttheory/go-bootfirm/cmd"

func main() {
	cmd.Execute()
}
