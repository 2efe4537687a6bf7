package scenario

// Check defines the decision under test.
type Check struct {
	// Mechanism is role, class or path.
	Mechanism string `yaml:"mechanism" json:"mechanism"`
	// Side is the requesting side for path checks and the decoding side
	// for class checks. Defaults to agent for paths, controller for classes.
	Side string `yaml:"side,omitempty" json:"side,omitempty"`
	Op   string `yaml:"op,omitempty" json:"op,omitempty"`
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// Class is a class name or type expression.
	Class string `yaml:"class,omitempty" json:"class,omitempty"`
	// Item names a work item declaration, see Items.
	Item      string `yaml:"item,omitempty" json:"item,omitempty"`
	Direction string `yaml:"direction,omitempty" json:"direction,omitempty"`
}

// Case is one test case within a scenario.
type Case struct {
	Check Check `yaml:"check"`
	// Expect is allow, deny or bypass.
	Expect string `yaml:"expect"`
	// Kind optionally pins the denial kind.
	Kind string `yaml:"kind,omitempty"`
}

// Context describes the request path cases run in.
type Context struct {
	Base        string   `yaml:"base,omitempty"`
	BuildDirs   []string `yaml:"build_dirs,omitempty"`
	Workspaces  []string `yaml:"workspaces,omitempty"`
	UserContent string   `yaml:"user_content,omitempty"`
	Temps       []string `yaml:"temps,omitempty"`
}

// Scenario is a named collection of policy test cases.
type Scenario struct {
	Name    string  `yaml:"name"`
	Context Context `yaml:"context,omitempty"`
	// Disable lists mechanisms whose kill-switch is engaged for the run.
	Disable []string `yaml:"disable,omitempty"`
	Cases   []Case   `yaml:"cases"`
}

// CaseResult is the outcome of a single test case.
type CaseResult struct {
	Index     int    `json:"index"`
	Mechanism string `json:"mechanism"`
	Subject   string `json:"subject"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
	Kind      string `json:"kind,omitempty"`
	Passed    bool   `json:"passed"`
	Reason    string `json:"reason,omitempty"`
}

// RunResult is the outcome of running all cases in a scenario.
type RunResult struct {
	Name   string       `json:"name"`
	File   string       `json:"file,omitempty"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
