/*
Package registry keeps the ordered list of live tunnel controllers and the
config file each one belongs to.

Order is insertion order. The position of a controller is used as its
tunnel.<index> prefix when its config file is rewritten, so the order is
part of what gets persisted.

# Locking

Readers share a RWMutex and work on copies: Snapshot and Controllers
return fresh slices, ForEach runs under the read lock and must not modify
the registry. Add, Remove, SetConfigFile and Clear take the write lock.

Remove stops the controller and collects its messages before taking the
lock. Clear empties the list under the lock and destroys the controllers
after releasing it, so a slow Destroy never blocks readers.

# Usage

	r := registry.New()
	r.Add(web, "/etc/tunnelgroup/tunnel.config.d/00-web-config")

	for _, e := range r.Snapshot() {
		fmt.Println(e.Controller.Name(), e.ConfigFile)
	}

	msgs := r.Remove(web) // stopped, messages drained, entry dropped
*/
package registry
