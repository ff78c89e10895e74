// Template configuration and link secret generation for first time setup
package install

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"pivotrepair/internal/coordinator"
	"pivotrepair/internal/global"
	"pivotrepair/internal/node"
	"strings"

	"golang.org/x/term"
)

// Example cluster used by both templates: coordinator plus three nodes
var templateAddresses = []string{
	fmt.Sprintf("[fd00::10]:%d", global.DefaultNodePort),
	fmt.Sprintf("[fd00::11]:%d", global.DefaultNodePort),
	fmt.Sprintf("[fd00::12]:%d", global.DefaultNodePort),
	fmt.Sprintf("[fd00::13]:%d", global.DefaultNodePort),
}

func CreateNodeTemplateConfig(path string) (err error) {
	var newCfg node.JSONConfig
	newCfg.NodeID = 1
	newCfg.Addresses = templateAddresses

	newCfg.Paths.Load = "/var/lib/pivotrepair/block.dat"
	newCfg.Paths.Store = "/var/lib/pivotrepair/repaired.dat"
	newCfg.Paths.Bandwidth = global.DefaultConfigDir + "/bandwidth.txt"

	newCfg.Pipeline.BlockNum = global.DefaultBlockNum
	newCfg.Pipeline.BlockSize = "1MiB"
	newCfg.Pipeline.QueueSize = global.DefaultQueueSize
	newCfg.Pipeline.FlowWorkers = global.DefaultFlowWorkers
	newCfg.Pipeline.AnnounceTimeout = global.DefaultAnnounceTimeout.String()
	newCfg.Pipeline.DialTimeout = global.DefaultDialTimeout.String()

	newCfg.Link.SecretFile = global.DefaultSecretPath

	newCfg.Metrics.Enabled = true
	newCfg.Metrics.Interval = global.MetricDefaultCollect.String()
	newCfg.Metrics.MaxAge = global.MetricDefaultMaxAge.String()
	newCfg.Metrics.EnableHTTP = true
	newCfg.Metrics.HTTPPortNum = global.HTTPListenPortNode

	err = writeTemplate(path, newCfg)
	return
}

func CreateCoordinatorTemplateConfig(path string) (err error) {
	var newCfg coordinator.JSONConfig
	newCfg.Addresses = templateAddresses
	newCfg.BlockSize = "64MiB"
	newCfg.PieceSize = "1MiB"
	newCfg.PlanPath = global.DefaultPlanPath
	newCfg.BandwidthRounds = 0
	newCfg.DialTimeout = global.DefaultDialTimeout.String()
	newCfg.Link.SecretFile = global.DefaultSecretPath

	err = writeTemplate(path, newCfg)
	return
}

// Random link secret shared by every member of the cluster
func CreateLinkSecret(path string) (err error) {
	secret := make([]byte, global.LinkSecretSize)
	_, err = rand.Read(secret)
	if err != nil {
		err = fmt.Errorf("failed generating secret: %v", err)
		return
	}

	err = writeConfirmed(path, []byte(base64.StdEncoding.EncodeToString(secret)+"\n"))
	return
}

func writeTemplate(path string, newCfg any) (err error) {
	confBytes, err := json.MarshalIndent(newCfg, "", "  ")
	if err != nil {
		err = fmt.Errorf("error marshaling new config: %v", err)
		return
	}
	confBytes = append(confBytes, '\n')

	err = writeConfirmed(path, confBytes)
	return
}

// Writes a new 0600 file, asking before replacing an existing one
func writeConfirmed(path string, content []byte) (err error) {
	if path == "" {
		err = fmt.Errorf("specify output file path via the --config/-c arguments")
		return
	}

	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		err = fmt.Errorf("failed to create configuration directory: %v", err)
		return
	}

	_, err = os.Stat(path)
	if err == nil {
		// No terminal - no overwrite
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Printf("Existing file present at '%s', not overwriting\n", path)
			return
		}
		fmt.Printf("File already exists at '%s'. Are you SURE you want to overwrite it? (yes/no): ", path)
		if !confirmed(os.Stdin) {
			fmt.Printf("Not overwriting '%s'\n", path)
			return
		}
	} else if !os.IsNotExist(err) {
		err = fmt.Errorf("failed checking file existence: %v", err)
		return
	}

	err = os.WriteFile(path, content, 0600)
	if err != nil {
		err = fmt.Errorf("failed to write '%s': %v", path, err)
		return
	}
	fmt.Printf("Successfully wrote '%s'\n", path)
	return
}

func confirmed(input io.Reader) (yes bool) {
	answer, _ := bufio.NewReader(input).ReadString('\n')
	yes = strings.ToLower(strings.TrimSpace(answer)) == "yes"
	return
}
