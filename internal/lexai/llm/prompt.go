// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import "fmt"

const analysisSystemPrompt = `You are a contract analysis engine. Respond with a single JSON object and nothing else. The object must have these keys:
"summary" (string, 2-4 sentences),
"riskScore" (number 0-100),
"riskLevel" ("low" | "medium" | "high" | "critical"),
"clauses" (array of strings naming notable clauses),
"obligations" (object with "yourObligations" and "otherPartyObligations", each an array of strings),
"parties" (array of strings naming the contracting parties),
"keyDates" (object; optional keys "effective", "expiry", "renewal" with ISO-8601 date values).`

func analysisUserPrompt(body string) string {
	return "Analyse the following contract:\n\n" + body
}

const diffSystemPrompt = `You are a contract revision analyst. Respond with a single JSON object and nothing else. The object must have these keys:
"summary" (string describing the overall change),
"changesAnalysis" (string explaining the material edits),
"newRisks" (array of strings, possibly empty),
"recommendation" (string).`

func diffUserPrompt(title, diffText string) string {
	return fmt.Sprintf("Contract: %s\n\nUnified diff between the two versions:\n\n%s", title, diffText)
}
