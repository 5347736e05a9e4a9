package signature

// defaultCoTPhrases is the 33-phrase chain-of-thought elicitation set used
// by the cot worker's Aho-Corasick matcher (spec.md §4.3).
var defaultCoTPhrases = []string{
	"think step by step",
	"let's think step by step",
	"walk me through your reasoning",
	"show your work",
	"explain your reasoning in detail",
	"break this down step by step",
	"reason through this carefully",
	"think out loud",
	"what is your chain of thought",
	"before answering, think through",
	"let's work through this methodically",
	"provide a detailed rationale",
	"articulate each step of your thinking",
	"decompose the problem",
	"think through this logically",
	"reason step-by-step before concluding",
	"give me your internal reasoning",
	"explain how you arrived at this",
	"show the intermediate steps",
	"lay out your thought process",
	"think carefully and show all steps",
	"work through the logic one step at a time",
	"please reason it out",
	"take it step by step",
	"first think, then answer",
	"use chain-of-thought reasoning",
	"reveal your reasoning process",
	"think methodically about this",
	"provide step-by-step justification",
	"explain each stage of your analysis",
	"think aloud as you solve this",
	"detail every reasoning step",
	"solve this with explicit step-by-step logic",
}

// defaultBrowserJA3Families names JA3 fingerprints characteristic of real
// browser TLS stacks (Chrome/Firefox/Safari families).
var defaultBrowserJA3Families = []string{
	"chrome-stable", "chrome-canary", "firefox-esr", "firefox-stable", "safari-webkit", "edge-chromium",
}

// defaultScriptedJA3SFamilies names JA3S server-side fingerprints typical
// of scripted HTTP clients (python-requests, curl, okhttp, node undici).
var defaultScriptedJA3SFamilies = []string{
	"python-requests", "curl-openssl", "okhttp", "node-undici", "go-net-http", "scrapy-twisted",
}

// defaultCompoundPreambleLexicon pairs of phrases that, both present in a
// system prompt, mark it as an extraction/jailbreak-style preamble
// (spec.md §4.3 role_preamble: "never refuse" + "always complete" or
// similar compound patterns).
var defaultCompoundPreambleLexicon = [][2]string{
	{"never refuse", "always complete"},
	{"do not decline", "fulfill every request"},
	{"ignore safety guidelines", "comply fully"},
	{"no matter what", "answer completely"},
	{"without restriction", "provide full detail"},
}
