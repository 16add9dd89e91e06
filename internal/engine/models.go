// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import "github.com/pdiddy/slopped-in/pkg/types"

// DefaultModels are the models offered when the configuration lists none.
// IDs are local model server tags; sizes are approximate downloads.
var DefaultModels = []types.ModelInfo{
	{ID: "qwen2.5:3b-instruct-q4_K_M", Label: "Qwen 3B", Size: "~2GB"},
	{ID: "qwen2.5:7b-instruct-q4_K_M", Label: "Qwen 7B", Size: "~4GB"},
	{ID: "llama3.2:3b-instruct-q4_K_M", Label: "Llama 3B", Size: "~2GB"},
}

func findModel(models []types.ModelInfo, id string) (types.ModelInfo, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return types.ModelInfo{}, false
}
