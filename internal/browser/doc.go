// Package browser opens isolated headless Chrome sessions on the mobile
// result list of a keyword.
//
// Every session gets its own browser process (chromedp exec allocator),
// a mobile identity (User-Agent, Accept-Language and cookies bound to the
// registrable domain of the search front end), a geolocation override at a
// jittered point and a randomised initial delay after the network goes
// idle. Session implements crawler.Page.
//
// Sessions must be closed; Manager.With guarantees it:
//
//	err := mgr.With(ctx, browser.Target{Keyword: "pasta", Route: model.RouteRestaurant},
//	    func(s *browser.Session) error {
//	        _, err := scroller.Run(ctx, s)
//	        return err
//	    })
package browser
