package interceptors

import "fmt"

// GetProfileConfig returns [http.interceptors.<interceptor>.profiles.<profile>].
func GetProfileConfig(interceptorsCfg map[string]map[string]any, interceptor, profile string) (map[string]any, error) {
	icfg, ok := interceptorsCfg[interceptor]
	if !ok {
		return nil, fmt.Errorf("interceptor %q is not configured (profile %q)", interceptor, profile)
	}
	profiles, ok := icfg["profiles"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("http.interceptors.%s.profiles is missing or not a table", interceptor)
	}
	raw, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("%s profile %q not found", interceptor, profile)
	}
	conf, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s profile %q is not a table", interceptor, profile)
	}
	return conf, nil
}
