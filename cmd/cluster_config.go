package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/bftbench/bftbench/harness"
)

// Define struct for YAML
type ClustersConfig struct {
	Clusters map[string]harness.Config `yaml:"clusters"`
}

// GetClusterConfig looks up a named cluster preset from the YAML file.
func GetClusterConfig(clustersFilePath string, presetName string) (harness.Config, bool) {
	// Read YAML file
	data, err := os.ReadFile(clustersFilePath)
	if err != nil {
		logrus.Fatalf("unable to read cluster presets file %s: %v", clustersFilePath, err)
	}

	// Parse YAML
	var cfg ClustersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.Fatalf("unable to parse cluster presets file %s: %v", clustersFilePath, err)
	}

	if cluster, exists := cfg.Clusters[presetName]; exists {
		logrus.Infof("Using cluster preset %v (n=%d f=%d c=%d)", presetName, cluster.N, cluster.F, cluster.C)
		return cluster, true
	}
	return harness.Config{}, false
}
