package provider

// Stackfile represents the structure of the crate.yaml stack file.
type Stackfile struct {
	Version   string               `yaml:"version"`
	Globals   GlobalsDTO           `yaml:"globals"`
	Functions map[string]TargetDTO `yaml:"functions"`
	Layers    map[string]LayerDTO  `yaml:"layers"`
}

// GlobalsDTO carries settings applied to every target.
type GlobalsDTO struct {
	Env map[string]string `yaml:"env"`
}

// TargetDTO represents a function definition in the stack file.
type TargetDTO struct {
	CodeDir      string            `yaml:"codeDir"`
	Runtime      string            `yaml:"runtime"`
	Handler      string            `yaml:"handler"`
	PackageType  string            `yaml:"packageType"`
	Architecture string            `yaml:"architecture"`
	Metadata     map[string]string `yaml:"metadata"`
	Env          map[string]string `yaml:"env"`
	Layers       []string          `yaml:"layers"`
	SkipBuild    bool              `yaml:"skipBuild"`
}

// LayerDTO represents a layer definition in the stack file.
type LayerDTO struct {
	CodeDir            string            `yaml:"codeDir"`
	Method             string            `yaml:"buildMethod"`
	PackageType        string            `yaml:"packageType"`
	Architecture       string            `yaml:"architecture"`
	Metadata           map[string]string `yaml:"metadata"`
	Env                map[string]string `yaml:"env"`
	CompatibleRuntimes []string          `yaml:"compatibleRuntimes"`
	SkipBuild          bool              `yaml:"skipBuild"`
}
