package crawler

// DOM contract of the result list page.
const (
	// ItemSelector matches every list row, ads included.
	ItemSelector = "li[data-laim-exp-id]"

	// AdAttr carries the experiment id; sponsored rows have AdMarker as value.
	AdAttr   = "data-laim-exp-id"
	AdMarker = "undefined*e"

	// ScrollContainerSelector is the element that scrolls the list.
	ScrollContainerSelector = "#_list_scroll_container"
)
