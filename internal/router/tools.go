package router

// AllTools returns the full dispatch-table vocabulary, grouped by handler
// category per spec.md §4.D. Register these on a Router with RegisterGroup.
func AllTools() []RouterTool {
	var all []RouterTool
	all = append(all, tabManagementTools()...)
	all = append(all, navigationTools()...)
	all = append(all, inputTools()...)
	all = append(all, inspectionTools()...)
	all = append(all, screenshotTools()...)
	all = append(all, storageTools()...)
	all = append(all, waitTools()...)
	all = append(all, evalTools()...)
	all = append(all, emulationTools()...)
	all = append(all, aiSiteTools()...)
	all = append(all, captureTools()...)
	return all
}
