// cfgen собирает готовые конфиги из базового пресета и окруженческих
// оверрайдов: configs/.scanbot.base.yaml + configs/overrides/<env>.yaml
// -> configs/values_<env>.yaml.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"gopkg.in/yaml.v2"

	"github.com/spf13/viper"
)

const configsDir = "configs"

func generateConfig(base *viper.Viper, overridePath string) (string, error) {
	env := strings.TrimSuffix(filepath.Base(overridePath), filepath.Ext(overridePath))

	merged := viper.New()
	for k, v := range base.AllSettings() {
		merged.Set(k, v)
	}

	override := viper.New()
	override.SetConfigFile(overridePath)
	if err := override.ReadInConfig(); err != nil {
		return "", errors.Wrap(err, "read override")
	}
	if err := merged.MergeConfigMap(override.AllSettings()); err != nil {
		return "", errors.Wrap(err, "merge override")
	}

	bs, err := yaml.Marshal(merged.AllSettings())
	if err != nil {
		return "", errors.Wrap(err, "marshal config to yaml")
	}

	outPath := filepath.Join(configsDir, fmt.Sprintf("values_%s.yaml", env))
	_ = os.Remove(outPath)
	out, err := os.Create(outPath)
	if err != nil {
		return "", errors.Wrap(err, "create values file")
	}
	defer func() {
		_ = out.Close()
	}()
	if _, err = out.WriteString(string(bs)); err != nil {
		_ = os.Remove(out.Name())
		return "", errors.Wrap(err, "write content")
	}
	return outPath, nil
}

func main() {
	base := viper.New()
	base.SetConfigName(".scanbot.base")
	base.SetConfigType("yaml")
	base.AddConfigPath(configsDir)
	if err := base.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	overrides, err := filepath.Glob(filepath.Join(configsDir, "overrides", "*.yaml"))
	if err != nil {
		panic(fmt.Errorf("get file glob: %w", err))
	}
	if len(overrides) == 0 {
		panic("no override files under configs/overrides")
	}

	for _, override := range overrides {
		outPath, gErr := generateConfig(base, override)
		if gErr != nil {
			panic(fmt.Errorf("can't generate result config: %w", gErr))
		}
		fmt.Printf("%s file complete\n", outPath)
	}
	fmt.Println("done")
}
