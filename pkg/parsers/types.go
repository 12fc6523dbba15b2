package parsers

type NucleiResult struct {
	TemplateID string     `json:"template-id"`
	Info       NucleiInfo `json:"info"`
	Type       string     `json:"type"`
	Host       string     `json:"host"`
	MatchedAt  string     `json:"matched-at"`
	Timestamp  string     `json:"timestamp"`
}

type NucleiInfo struct {
	Name           string               `json:"name"`
	Severity       string               `json:"severity"`
	Description    string               `json:"description"`
	Reference      any                  `json:"reference"`
	Classification NucleiClassification `json:"classification"`
}

type NucleiClassification struct {
	CVEID     any     `json:"cve-id"`
	CVSSScore float64 `json:"cvss-score"`
}

type ZapReport struct {
	Site []ZapSite `json:"site"`
}

type ZapSite struct {
	Name   string     `json:"@name"`
	Alerts []ZapAlert `json:"alerts"`
}

type ZapAlert struct {
	Alert     string `json:"alert"`
	RiskCode  string `json:"riskcode"`
	Desc      string `json:"desc"`
	Reference string `json:"reference"`
	CWEID     string `json:"cweid"`
}

type WapitiReport struct {
	Vulnerabilities map[string][]WapitiVuln `json:"vulnerabilities"`
}

type WapitiVuln struct {
	Level int      `json:"level"`
	Info  string   `json:"info"`
	WSTG  []string `json:"wstg"`
	CVE   []string `json:"cve"`
}

type TestsslEntry struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Finding  string `json:"finding"`
	CVE      string `json:"cve"`
}

type FfufOutput struct {
	Commandline string       `json:"commandline"`
	Time        string       `json:"time"`
	Results     []FfufResult `json:"results"`
}

type FfufResult struct {
	Input       map[string]string `json:"input"`
	Status      int               `json:"status"`
	Length      int               `json:"length"`
	Words       int               `json:"words"`
	Lines       int               `json:"lines"`
	ContentType string            `json:"content-type"`
	URL         string            `json:"url"`
	Host        string            `json:"host"`
}
