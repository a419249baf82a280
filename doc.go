// Package docshell provides an HTML document rendering framework built on top
// of the html/template package.
//
// docshell is organized around Components and Pages. A Component is some
// piece of the HTML document that you want included in the page's output. A
// Page is a Component that gets rendered itself rather than being included in
// another Component. The root document of an application is a Page; the
// widgets it places in the body (a live reload client, an iframe
// synchronization bridge) are Components.
//
// Each server should have a Site, which acts as a singleton for the server
// and provides the fs.FS containing the templates that Components are using.
// The Site is available at render time as .Site, so it can hold configuration
// data used across all pages.
//
// Components can contribute to the document head by implementing LinkLister,
// and to the script injection point in the body by implementing ScriptLister.
// The Links and Scripts of every Component reachable from the Page through
// UseComponents are collected depth first, page first, and made available to
// the template as .Links and .Scripts. Order is preserved, since a stylesheet
// linked later can override rules from one linked earlier.
//
// To render a page, pass it to the Render function.
package docshell
