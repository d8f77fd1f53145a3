package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// InitCommand — create a new research session or continue an archived one.
type InitCommand struct {
	Workflow    string `long:"workflow" description:"Workflow kind: research | innovation-scout | deep-research" default:"research"`
	Environment string `long:"env" description:"Override environment detection: cli | ide | web"`
	Continue    string `long:"continue" description:"Archived session ID to continue from"`

	Args struct {
		Topic string `positional-arg-name:"topic" description:"Research topic"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// LogCommand — record a URL observation against the active session.
type LogCommand struct {
	Tier      int    `long:"tier" description:"Source tier 1-3 (default: detected from domain)"`
	Category  string `long:"category" description:"Category: research | industry | benchmark | social | lab | other (default: detected)"`
	Relevance int    `long:"relevance" description:"Relevance score 1-5" default:"3"`
	Used      bool   `long:"used" description:"Mark the URL as used in output"`
	Notes     string `long:"notes" description:"Additional notes"`
	Filter    string `long:"filter" description:"Which filter found this: viral | groundbreaker | manual" default:"manual"`

	Args struct {
		URL string `positional-arg-name:"url" description:"The URL to record" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// FindingCommand — record a synthesized finding on the active session.
type FindingCommand struct {
	URLs []string `long:"url" description:"Logged URL this finding references (repeatable)"`

	Args struct {
		Text string `positional-arg-name:"text" description:"Finding text" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// ThesisCommand — set the working thesis on the active session.
type ThesisCommand struct {
	Args struct {
		Text string `positional-arg-name:"text" description:"Thesis text" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// StatusCommand — summarize the active session and recent archives.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// ArchiveCommand — archive the active session into the global store.
type ArchiveCommand struct {
	Session string `long:"session" description:"Session ID (default: the active session)"`
	Force   bool   `long:"force" description:"Override the URL-count quality gate"`

	globals *GlobalFlags
	version string
}

// SearchCommand — keyword search over archived sessions.
type SearchCommand struct {
	Workflow string `long:"workflow" description:"Filter by workflow kind: research | innovation-scout | deep-research"`
	Since    string `long:"since" description:"Only archives newer than this age (e.g. 30d, 12h)"`
	Until    string `long:"until" description:"Only archives older than this age"`
	Limit    int    `long:"limit" description:"Maximum number of results" default:"10"`
	Offset   int    `long:"offset" description:"Skip this many results"`

	Args struct {
		Term string `positional-arg-name:"term" description:"Keyword to search for"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// SyncCommand — reconcile local and global stores.
type SyncCommand struct {
	Direction string `long:"direction" description:"Sync direction: push | pull | both" default:"both"`

	globals *GlobalFlags
	version string
}

// ExportCommand — write the URL log as CSV.
type ExportCommand struct {
	Session string `long:"session" description:"Session ID (default: the active session)"`
	Output  string `long:"output" description:"Output file (default: stdout)" default:"-"`

	globals *GlobalFlags
	version string
}
