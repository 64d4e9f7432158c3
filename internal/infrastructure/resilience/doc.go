/*
Package resilience provides circuit breakers for outbound calls made by the
engine: dependency downloads and the package-search and publish collaborators.

A Breaker fails fast once a remote keeps failing, so a dead CDN does not make
every run wait for a full retry cycle before reporting DependencyLoadError.
Breakers are grouped per remote host so one unhealthy origin does not block
dependencies served from another.

# Usage

	group := resilience.NewGroup(resilience.Settings{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	})

	err := group.For("cdn.jsdelivr.net").Do(func() error {
		return fetch(url)
	})

# States

	Closed --[Threshold consecutive failures]-> Open --[Cooldown]-> Half-Open
	Half-Open --[success]-> Closed
	Half-Open --[failure]-> Open
*/
package resilience
